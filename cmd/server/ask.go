package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"med-assist-go/internal/model"
	"med-assist-go/internal/pipeline"
	"med-assist-go/internal/repository"
	"med-assist-go/internal/session"
	"med-assist-go/internal/view"
	"med-assist-go/pkg/log"

	"github.com/spf13/cobra"
)

func askCMD() *cobra.Command {
	var (
		userType       string
		urgency        string
		responseLength string
		documentName   string
		documentSize   int64
		fast           bool
	)
	ask := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run one submission locally and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(true)
			defer log.Sync()

			stages := pipeline.StagesFromConfig(cfg.Pipeline)
			if fast {
				for i := range stages {
					stages[i].Duration = 0
				}
			}
			manager := session.NewManager(repository.NewMemoryChatHistoryRepository(), session.Options{
				Stages:      stages,
				UploadRules: session.UploadRulesFromConfig(cfg.Upload),
			})
			sess, err := manager.Create()
			if err != nil {
				return err
			}

			patch := model.PreferencePatch{}
			if userType != "" {
				v := model.UserType(userType)
				patch.UserType = &v
			}
			if urgency != "" {
				v := model.Urgency(urgency)
				patch.Urgency = &v
			}
			if responseLength != "" {
				v := model.ResponseLength(responseLength)
				patch.ResponseLength = &v
			}
			prefs, err := sess.Preferences().Set(patch)
			if err != nil {
				return err
			}

			if documentName != "" {
				if _, err := sess.Upload().Set(model.FileCandidate{
					Name:      documentName,
					SizeBytes: documentSize,
					MimeType:  "application/pdf",
				}); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			updates, cancel := sess.Pipeline().Subscribe(16)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for s := range updates {
					if s.State == model.StateStaged {
						p := view.NewProcessingView(s)
						fmt.Fprintf(out, "[%d/%d] %s (%d%%)\n", p.Stage, p.TotalStages, p.StatusText, p.Progress)
					}
				}
			}()

			entry, err := sess.Submit(ctx, strings.Join(args, " "))
			cancel()
			<-done
			if err != nil {
				return err
			}
			printAnswer(out, view.NewAnswerView(entry.Answer, prefs.Urgency))
			return nil
		},
	}
	ask.Flags().StringVar(&userType, "user-type", "", "Patient, Healthcare Professional or Student")
	ask.Flags().StringVar(&urgency, "urgency", "", "Low, Medium or High")
	ask.Flags().StringVar(&responseLength, "length", "", "Concise, Moderate or Detailed")
	ask.Flags().StringVar(&documentName, "document", "", "name of an attached PDF")
	ask.Flags().Int64Var(&documentSize, "document-size", 0, "size of the attached PDF in bytes")
	ask.Flags().BoolVar(&fast, "fast", false, "skip the simulated stage delays")
	return ask
}

func printAnswer(w io.Writer, a view.AnswerView) {
	s := a.Sections
	if a.UrgentWarning {
		fmt.Fprintln(w, "!! High urgency query")
	}
	fmt.Fprintf(w, "\nMedical Answer:\n%s\n", s.MedicalAnswer)
	fmt.Fprintf(w, "\nContextual References:\n%s\n", s.ContextualReferences)
	fmt.Fprintln(w, "\nSuggested Follow-up Questions:")
	for i, q := range s.FollowupQuestions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, q)
	}
	fmt.Fprintf(w, "\nImportant Note:\n%s\n", s.ImportantNote)
}
