package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// AnalysisClient talks to the remote summarization and diagnosis services.
type AnalysisClient interface {
	Summarize(ctx context.Context, req SummarizeRequest) (string, error)
	Diagnose(ctx context.Context, req DiagnoseRequest) (string, error)
}

type SummarizeRequest struct {
	PatientInfo SummaryPatient `json:"patientInfo"`
	Answers     string         `json:"answers"`
	Timestamp   string         `json:"timestamp"`
}

type SummaryPatient struct {
	Age        int    `json:"age"`
	Gender     string `json:"gender"`
	Department string `json:"department"`
	VisitType  string `json:"visitType"`
}

type DiagnoseRequest struct {
	Summary      string       `json:"summary"`
	PatientInfo  PatientInfo  `json:"patientInfo"`
	UrgencyLevel UrgencyLevel `json:"urgencyLevel"`
}

// Analysis is the outcome of one analyze call. Warning is set when the summary
// had to be produced locally because the summarization service was unreachable.
type Analysis struct {
	Result  AnalysisResult
	Warning string
}

const (
	unknownDetail       = "詳細不明"
	summaryFallbackWarn = DisclaimerReference + " API接続に問題が発生しましたが、基本的な分析を提供します。"
)

var errEmptySummary = errors.New("summarization returned no summary")

// Analyzer builds the AI analysis for a completed interview.
type Analyzer struct {
	client   AnalysisClient
	diagnose bool
	now      func() time.Time
}

func NewAnalyzer(client AnalysisClient, diagnose bool) *Analyzer {
	return &Analyzer{
		client:   client,
		diagnose: diagnose,
		now:      time.Now,
	}
}

// Analyze always returns a usable result. A summarization failure falls back to
// the local template; a diagnosis failure only drops the diagnosis.
func (a *Analyzer) Analyze(ctx context.Context, patient PatientInfo, answers Answers) Analysis {
	now := a.now()

	summary := Attempt(func() (string, error) {
		return a.client.Summarize(ctx, SummarizeRequest{
			PatientInfo: SummaryPatient{
				Age:        now.Year() - patient.BirthYear,
				Gender:     patient.Gender.Label(),
				Department: patient.DepartmentName(),
				VisitType:  patient.VisitType.Label(),
			},
			Answers:   CombinedTranscript(answers),
			Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	})

	urgency := AssessUrgency(answers, patient)

	var out Analysis
	if err := summary.Err(); err != nil {
		log.Warn().Err(err).Msg("summarization failed, using fallback summary")
		out.Warning = summaryFallbackWarn
	}
	out.Result.Summary = summary.
		Ensure(func(s string) bool { return strings.TrimSpace(s) != "" }, errEmptySummary).
		UnwrapOrElse(func(error) string { return FallbackSummary(answers) })

	// An empty summary from a reachable service still gets a diagnosis, made
	// from the template summary.
	if summary.IsOk() && a.diagnose {
		diagnosis := Attempt(func() (string, error) {
			return a.client.Diagnose(ctx, DiagnoseRequest{
				Summary:      out.Result.Summary,
				PatientInfo:  patient,
				UrgencyLevel: urgency.Level,
			})
		})
		if err := diagnosis.Err(); err != nil {
			log.Debug().Err(err).Msg("diagnosis support unavailable")
		}
		out.Result.Diagnosis = strings.TrimSpace(diagnosis.UnwrapOr(""))
	}
	out.Result.UrgencyAssessment = urgency
	return out
}

// CombinedTranscript renders the answers in question order for the summarizer.
func CombinedTranscript(answers Answers) string {
	blocks := make([]string, len(answers))
	for i, a := range answers {
		blocks[i] = fmt.Sprintf("質問%d: %s\n回答: %s", i+1, a.Question, a.Answer)
	}
	return strings.Join(blocks, "\n\n")
}

// FallbackSummary renders the deterministic summary used when the summarizer
// cannot produce one.
func FallbackSummary(answers Answers) string {
	field := func(i int) string {
		if text := strings.TrimSpace(answers.Get(i).Answer); text != "" {
			return text
		}
		return unknownDetail
	}

	var b strings.Builder
	fmt.Fprintf(&b, "【%s】\n\n", DisclaimerReference)
	fmt.Fprintf(&b, "主な症状：\n%s\n\n", field(0))
	fmt.Fprintf(&b, "痛み・違和感の程度：\n%s\n\n", field(1))
	fmt.Fprintf(&b, "その他の症状：\n%s\n\n", field(2))
	fmt.Fprintf(&b, "現在の服用薬：\n%s\n\n", field(3))
	fmt.Fprintf(&b, "アレルギー情報：\n%s\n\n", field(4))
	b.WriteString("※ この要約は患者様の回答内容をもとに自動生成されました。\n")
	fmt.Fprintf(&b, "※ %s\n", DisclaimerMain)
	fmt.Fprintf(&b, "※ %s", DisclaimerDoctorDecision)
	return b.String()
}
