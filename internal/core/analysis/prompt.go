package analysis

import (
	"fmt"
	"strings"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

const systemInstruction = `Você é um radiologista odontológico especialista. Analise a imagem recebida e
responda SOMENTE com um objeto JSON válido, sem texto adicional. Use a numeração
dentária FDI (11-48). Confiança deve ser um número entre 0 e 1. Coordenadas de
bbox em pixels da imagem original. Se a imagem não tiver qualidade diagnóstica,
informe overall_quality abaixo de 6 e não invente achados.`

const responseSchema = `{
  "image_quality_analysis": {"overall_quality": 8.5, "contrast": "adequado", "positioning": "adequado"},
  "findings": [
    {
      "tooth_number": "16",
      "finding_type": "Cárie oclusal",
      "severity": "leve | moderada | severa",
      "confidence": 0.87,
      "bbox": {"x": 120, "y": 80, "width": 40, "height": 35},
      "description": "descrição clínica objetiva",
      "clinical_recommendations": ["restauração em resina composta"],
      "urgency": "baixa | média | alta"
    }
  ],
  "overlay_instructions": [
    {"type": "rectangle", "bbox": {"x": 120, "y": 80, "width": 40, "height": 35}, "color": "#FF0000", "label": "Cárie 16"}
  ],
  "clinical_summary": {
    "primary_diagnosis": "diagnóstico principal",
    "recommendations": ["..."],
    "requires_additional_exams": false
  }
}`

var examFocus = map[domain.ExamType]string{
	domain.ExamPanoramic:     "radiografia panorâmica: avalie todos os dentes, osso alveolar, seios maxilares e ATM",
	domain.ExamPeriapical:    "radiografia periapical: foque em lesões periapicais, tratamento endodôntico e raízes",
	domain.ExamBitewing:      "radiografia interproximal: foque em cáries proximais e nível da crista óssea",
	domain.ExamCephalometric: "telerradiografia cefalométrica: foque em relações esqueléticas e ortodônticas",
	domain.ExamVolumetric:    "tomografia volumétrica: avalie estruturas ósseas, implantes e lesões",
}

// BuildPrompt assembles the provider-independent instruction for an exam type.
func BuildPrompt(examType domain.ExamType) domain.PromptSpec {
	focus, ok := examFocus[examType]
	if !ok {
		focus = examFocus[domain.ExamPanoramic]
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Tipo de exame: %s.\n", focus)
	user.WriteString("Identifique cáries, doença periodontal, lesões periapicais, implantes, fraturas e alterações ortodônticas.\n")
	user.WriteString("Retorne exatamente este formato JSON:\n")
	user.WriteString(responseSchema)

	return domain.PromptSpec{
		System:           systemInstruction,
		User:             user.String(),
		ResponseMIMEType: "application/json",
	}
}
