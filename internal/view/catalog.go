package view

import "med-assist-go/internal/model"

// Option 是偏好编辑器中的一个选项。
type Option struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Tone        string `json:"tone,omitempty"`
}

// PreferenceCatalog 列出三组偏好的全部选项和默认值。
type PreferenceCatalog struct {
	UserTypes       []Option          `json:"userTypes"`
	Urgencies       []Option          `json:"urgencies"`
	ResponseLengths []Option          `json:"responseLengths"`
	Defaults        model.Preferences `json:"defaults"`
}

var (
	userTypeDescriptions = map[model.UserType]string{
		model.UserTypePatient:                "General health inquiries",
		model.UserTypeHealthcareProfessional: "Clinical-level information",
		model.UserTypeStudent:                "Educational content",
	}
	urgencyDescriptions = map[model.Urgency]string{
		model.UrgencyLow:    "General information",
		model.UrgencyMedium: "Standard consultation",
		model.UrgencyHigh:   "Urgent concern",
	}
	responseLengthDescriptions = map[model.ResponseLength]string{
		model.ResponseLengthConcise:  "Brief, essential points",
		model.ResponseLengthModerate: "Balanced detail",
		model.ResponseLengthDetailed: "Comprehensive information",
	}
)

func Catalog() PreferenceCatalog {
	c := PreferenceCatalog{Defaults: model.DefaultPreferences()}
	for _, v := range model.UserTypes {
		c.UserTypes = append(c.UserTypes, Option{Value: string(v), Label: string(v), Description: userTypeDescriptions[v]})
	}
	for _, v := range model.Urgencies {
		c.Urgencies = append(c.Urgencies, Option{Value: string(v), Label: string(v), Description: urgencyDescriptions[v], Tone: UrgencyTone(v)})
	}
	for _, v := range model.ResponseLengths {
		c.ResponseLengths = append(c.ResponseLengths, Option{Value: string(v), Label: string(v), Description: responseLengthDescriptions[v]})
	}
	return c
}
