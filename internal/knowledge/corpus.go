package knowledge

import "carebridge/internal/models"

// DefaultCorpus returns the built-in reference documents. The corpus is static
// at process start; there is no runtime update path on the serving side.
func DefaultCorpus() []models.KnowledgeDocument {
	return []models.KnowledgeDocument{
		{
			ID:       "hypertension-basics",
			Text:     "Hypertension, or high blood pressure, is a chronic condition where blood pressure in the arteries is persistently elevated. Lifestyle changes such as reducing salt intake, regular exercise, and maintaining a healthy weight can help manage it. Common medications include ACE inhibitors, beta blockers, and diuretics.",
			Metadata: map[string]string{"topic": "hypertension"},
		},
		{
			ID:       "diabetes-type2",
			Text:     "Type 2 diabetes is a condition where the body becomes resistant to insulin or does not produce enough of it. Management includes monitoring blood sugar, a balanced diet low in refined sugars, physical activity, and medications such as metformin. Untreated diabetes can damage the heart, kidneys, eyes, and nerves.",
			Metadata: map[string]string{"topic": "diabetes"},
		},
		{
			ID:       "asthma-care",
			Text:     "Asthma is a chronic respiratory condition causing inflammation and narrowing of the airways, leading to wheezing, shortness of breath, and coughing. Reliever inhalers treat acute symptoms while preventer inhalers reduce long-term inflammation. Known triggers such as allergens, smoke, and cold air should be avoided.",
			Metadata: map[string]string{"topic": "asthma"},
		},
		{
			ID:       "aspirin-usage",
			Text:     "Aspirin is a common pain reliever and blood thinner. Low-dose aspirin is sometimes prescribed to reduce the risk of heart attack and stroke. It can irritate the stomach lining and increases bleeding risk, especially when combined with other anticoagulants such as warfarin.",
			Metadata: map[string]string{"topic": "medication"},
		},
		{
			ID:       "warfarin-usage",
			Text:     "Warfarin is an anticoagulant used to prevent blood clots in conditions like atrial fibrillation and deep vein thrombosis. It requires regular INR monitoring and interacts with many drugs and foods rich in vitamin K. Combining warfarin with other blood thinners significantly increases bleeding risk.",
			Metadata: map[string]string{"topic": "medication"},
		},
		{
			ID:       "fever-management",
			Text:     "A fever is a temporary rise in body temperature, often caused by infection. Rest, fluids, and over-the-counter medication such as paracetamol or ibuprofen can relieve discomfort. Seek medical attention for a fever above 39.4 degrees Celsius, or one lasting more than three days.",
			Metadata: map[string]string{"topic": "general"},
		},
		{
			ID:       "medication-adherence",
			Text:     "Taking medications exactly as prescribed is essential for treatment success. Skipping doses or stopping early can cause relapse or drug resistance. Use reminders, pill organizers, or routine anchoring to stay consistent, and talk to a healthcare provider before changing any regimen.",
			Metadata: map[string]string{"topic": "general"},
		},
		{
			ID:       "when-to-seek-help",
			Text:     "Seek emergency care for chest pain, difficulty breathing, sudden weakness or numbness, severe bleeding, or confusion. For persistent but non-urgent symptoms, schedule a visit with a primary care provider. A virtual assistant cannot replace professional medical evaluation.",
			Metadata: map[string]string{"topic": "triage"},
		},
	}
}
