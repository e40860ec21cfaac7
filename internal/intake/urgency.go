package intake

import "strings"

// Keyword tiers. Japanese terms are the clinic's vocabulary; English equivalents
// cover answers typed on an English keyboard layout.
var (
	emergencyKeywords = []string{
		"激痛", "意識", "呼吸", "胸痛", "動悸", "失神", "吐血", "下血",
		"高熱", "39度", "40度", "麻痺", "けいれん", "痙攣",
		"severe pain", "unconscious", "consciousness", "difficulty breathing", "trouble breathing",
		"can't breathe", "chest pain", "palpitation", "faint", "vomiting blood", "blood in stool",
		"rectal bleeding", "high fever", "39°", "40°", "39 degrees", "40 degrees",
		"paralysis", "seizure", "convulsion",
	}

	urgentKeywords = []string{
		"痛み", "発熱", "38度", "嘔吐", "下痢", "腫れ", "出血",
		"息切れ", "めまい", "頭痛", "腹痛",
		"pain", "fever", "38°", "38 degrees", "vomit", "diarrhea", "swelling", "bleeding",
		"shortness of breath", "dizz", "headache", "abdominal pain", "stomach ache",
	}
)

// AssessUrgency classifies the answers into an urgency tier. Emergency keywords win
// over urgent ones; within a tier only membership matters.
func AssessUrgency(answers []InterviewAnswer, patient PatientInfo) UrgencyAssessment {
	text := joinedAnswerText(answers)
	department := patient.DepartmentName()

	if containsAny(text, emergencyKeywords) {
		return UrgencyAssessment{
			Level:  UrgencyEmergency,
			Reason: "重篤な症状の可能性があります",
			Action: "直ちに救急外来を受診してください",
			RecommendedDepartments: []RecommendedDepartment{
				{Name: DepartmentEmergency.Label(), Reason: "緊急対応が必要"},
				{Name: department, Reason: "専門的診断が必要"},
			},
		}
	}

	if containsAny(text, urgentKeywords) {
		return UrgencyAssessment{
			Level:  UrgencyUrgent,
			Reason: "症状の経過観察が必要です",
			Action: "早めに医療機関を受診してください",
			RecommendedDepartments: []RecommendedDepartment{
				{Name: department, Reason: "専門的診断が推奨"},
				{Name: DepartmentInternal.Label(), Reason: "一般的な診断が可能"},
			},
		}
	}

	return UrgencyAssessment{
		Level:  UrgencyNormal,
		Reason: "一般的な症状と考えられます",
		Action: "適切な時期に医療機関を受診してください",
		RecommendedDepartments: []RecommendedDepartment{
			{Name: department, Reason: "専門的相談が適切"},
		},
	}
}

func joinedAnswerText(answers []InterviewAnswer) string {
	parts := make([]string, len(answers))
	for i, a := range answers {
		parts[i] = a.Answer
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
