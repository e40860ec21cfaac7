package intake

// Questions is the fixed interview, asked in this order.
var Questions = []string{
	"どのような症状でお困りですか？いつ頃からの症状かも教えてください。",
	"痛みや違和感の程度はいかがですか？",
	"他に気になる症状はありますか？",
	"現在服用されているお薬はありますか？",
	"アレルギーをお持ちですか？",
}

// QuestionCount is the number of answer slots in a session.
const QuestionCount = 5

const InterviewLanguage = "ja-JP"

// AnswerTimestampLayout renders answer timestamps in local time.
const AnswerTimestampLayout = "2006/01/02 15:04:05"

const (
	DepartmentInternal            Department = "internal-medicine"
	DepartmentPediatrics          Department = "pediatrics"
	DepartmentDermatology         Department = "dermatology"
	DepartmentPsychiatry          Department = "psychiatry"
	DepartmentSurgery             Department = "surgery"
	DepartmentOrthopedics         Department = "orthopedics"
	DepartmentObstetrics          Department = "obstetrics-gynecology"
	DepartmentOphthalmology       Department = "ophthalmology"
	DepartmentOtolaryngology      Department = "otolaryngology"
	DepartmentUrology             Department = "urology"
	DepartmentNeurosurgery        Department = "neurosurgery"
	DepartmentPlasticSurgery      Department = "plastic-surgery"
	DepartmentRehabilitation      Department = "rehabilitation"
	DepartmentDentistry           Department = "dentistry"
	DepartmentCosmeticDermatology Department = "cosmetic-dermatology"
	DepartmentCosmeticDentistry   Department = "cosmetic-dentistry"
	DepartmentOther               Department = "other"

	// DepartmentEmergency is only ever recommended, never chosen by the patient.
	DepartmentEmergency Department = "emergency"
)

// DepartmentOption is one selectable entry of the department picker.
type DepartmentOption struct {
	Code  Department `json:"code"`
	Label string     `json:"label"`
}

var departmentOptions = []DepartmentOption{
	{DepartmentInternal, "内科"},
	{DepartmentPediatrics, "小児科"},
	{DepartmentDermatology, "皮膚科"},
	{DepartmentPsychiatry, "精神科"},
	{DepartmentSurgery, "外科"},
	{DepartmentOrthopedics, "整形外科"},
	{DepartmentObstetrics, "産婦人科"},
	{DepartmentOphthalmology, "眼科"},
	{DepartmentOtolaryngology, "耳鼻咽喉科"},
	{DepartmentUrology, "泌尿器科"},
	{DepartmentNeurosurgery, "脳神経外科"},
	{DepartmentPlasticSurgery, "形成外科"},
	{DepartmentRehabilitation, "リハビリテーション科"},
	{DepartmentDentistry, "歯科"},
	{DepartmentCosmeticDermatology, "美容皮膚科"},
	{DepartmentCosmeticDentistry, "美容歯科"},
	{DepartmentOther, "その他"},
}

// Departments returns the selectable departments in display order.
func Departments() []DepartmentOption {
	out := make([]DepartmentOption, len(departmentOptions))
	copy(out, departmentOptions)
	return out
}

func (d Department) Label() string {
	if d == DepartmentEmergency {
		return "救急科"
	}
	for _, opt := range departmentOptions {
		if opt.Code == d {
			return opt.Label
		}
	}
	return string(d)
}

// Selectable reports whether a patient may choose d.
func (d Department) Selectable() bool {
	for _, opt := range departmentOptions {
		if opt.Code == d {
			return true
		}
	}
	return false
}

func (v VisitType) Label() string {
	switch v {
	case VisitFirst:
		return "初診"
	case VisitRepeat:
		return "再診"
	case VisitReissue:
		return "診療券再発行"
	}
	return string(v)
}

func (v VisitType) Valid() bool {
	return v == VisitFirst || v == VisitRepeat || v == VisitReissue
}

func (g Gender) Label() string {
	switch g {
	case GenderMale:
		return "男性"
	case GenderFemale:
		return "女性"
	}
	return string(g)
}

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

func (l UrgencyLevel) Label() string {
	switch l {
	case UrgencyEmergency:
		return "緊急"
	case UrgencyUrgent:
		return "要注意"
	case UrgencyNormal:
		return "通常"
	}
	return string(l)
}

// Medical disclaimers shown alongside any AI output.
const (
	DisclaimerReference      = "※参考情報"
	DisclaimerMain           = "このAI分析は参考情報であり、医療診断ではありません"
	DisclaimerDoctorDecision = "最終的な診断・治療方針は医師が決定します"
	DisclaimerEmergency      = "症状が悪化した場合は速やかに医療機関を受診してください"
	DisclaimerEmergencyCall  = "緊急時は119番通報または救急外来を受診してください"
	DisclaimerLimitation     = "AI分析の精度には限界があり、医師の判断と異なる場合があります"
)

// Catalog is the static data a front end needs to render the intake.
type Catalog struct {
	Questions   []string           `json:"questions"`
	Departments []DepartmentOption `json:"departments"`
	VisitTypes  []Option           `json:"visitTypes"`
	Genders     []Option           `json:"genders"`
	Language    string             `json:"language"`
	Audio       AudioLimits        `json:"audio"`
	Disclaimers []string           `json:"disclaimers"`
}

type Option struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type AudioLimits struct {
	MaxBytes  int64    `json:"maxBytes"`
	MIMETypes []string `json:"mimeTypes"`
}

func NewCatalog() Catalog {
	questions := make([]string, len(Questions))
	copy(questions, Questions)

	visitTypes := make([]Option, 0, 3)
	for _, v := range []VisitType{VisitFirst, VisitRepeat, VisitReissue} {
		visitTypes = append(visitTypes, Option{Code: string(v), Label: v.Label()})
	}
	genders := make([]Option, 0, 2)
	for _, g := range []Gender{GenderMale, GenderFemale} {
		genders = append(genders, Option{Code: string(g), Label: g.Label()})
	}
	mimeTypes := make([]string, len(SupportedAudioTypes))
	copy(mimeTypes, SupportedAudioTypes)

	return Catalog{
		Questions:   questions,
		Departments: Departments(),
		VisitTypes:  visitTypes,
		Genders:     genders,
		Language:    InterviewLanguage,
		Audio:       AudioLimits{MaxBytes: MaxAudioSize, MIMETypes: mimeTypes},
		Disclaimers: []string{
			DisclaimerMain,
			DisclaimerDoctorDecision,
			DisclaimerEmergency,
			DisclaimerEmergencyCall,
			DisclaimerLimitation,
		},
	}
}
