package view

// Disclaimer 是页面底部的医疗免责声明。
type Disclaimer struct {
	Summary           string   `json:"summary"`
	CapabilitiesTitle string   `json:"capabilitiesTitle"`
	Capabilities      []string `json:"capabilities"`
	SeekCareTitle     string   `json:"seekCareTitle"`
	SeekCare          []string `json:"seekCare"`
	Acknowledgement   string   `json:"acknowledgement"`
}

func MedicalDisclaimer() Disclaimer {
	return Disclaimer{
		Summary:           "This tool is intended for informational purposes only. Always consult a qualified healthcare provider for medical advice.",
		CapabilitiesTitle: "This AI assistant:",
		Capabilities: []string{
			"Provides general health information",
			"Cannot diagnose medical conditions",
			"Should not replace professional medical advice",
			"May not have access to your complete medical history",
		},
		SeekCareTitle: "Please seek immediate medical attention if:",
		SeekCare: []string{
			"You have severe or worsening symptoms",
			"You experience a medical emergency",
			"You need prescription medications",
			"You require diagnostic tests or procedures",
		},
		Acknowledgement: "By using this service, you acknowledge that you understand these limitations and will consult with healthcare professionals for medical decisions.",
	}
}
