package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/signintech/gopdf"

	"clinic-intake/internal/intake"
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error
}

// TrueType fonts with Japanese glyphs, tried in order.
var defaultFontPaths = []string{
	"/usr/share/fonts/truetype/noto/NotoSansJP-Regular.ttf",
	"/usr/share/fonts/noto/NotoSansJP-Regular.ttf",
	"/usr/share/fonts/opentype/ipafont-gothic/ipag.ttf",
	"/usr/share/fonts/truetype/fonts-japanese-gothic.ttf",
	"/usr/share/fonts/truetype/takao-gothic/TakaoPGothic.ttf",
	"/usr/share/fonts/ipa-gothic/ipag.ttf",
}

const (
	fontName     = "JP"
	textWidth    = 515.0
	pageBottom   = 790.0
	marginLeft   = 40.0
	marginTop    = 40.0
	reportLayout = "2006/01/02 15:04"
)

type Service struct {
	tgClient     TelegramClient
	doctorChatID int64
	fontPaths    []string
}

// NewService builds the doctor handoff sender. fontPath, when set, is tried before
// the system fonts.
func NewService(tg TelegramClient, doctorChatID int64, fontPath string) *Service {
	paths := defaultFontPaths
	if fontPath != "" {
		paths = append([]string{fontPath}, defaultFontPaths...)
	}
	return &Service{
		tgClient:     tg,
		doctorChatID: doctorChatID,
		fontPaths:    paths,
	}
}

// SendDoctorReport posts an urgency alert to the doctor chat, then the PDF
// intake report. The alert goes out even when the PDF cannot be rendered.
func (s *Service) SendDoctorReport(ctx context.Context, h intake.Handoff) error {
	logger := log.With().Str("session_id", h.SessionID).Int64("chat_id", s.doctorChatID).Logger()

	if err := s.tgClient.SendMessage(ctx, s.doctorChatID, composeAlert(h)); err != nil {
		return err
	}

	pdf, err := s.renderPDF(composeReport(h))
	if err != nil {
		return fmt.Errorf("render intake report: %w", err)
	}
	logger.Debug().Int("bytes", len(pdf)).Msg("intake report rendered")

	fileName := fmt.Sprintf("intake_%s.pdf", h.SessionID)
	return s.tgClient.SendDocument(ctx, s.doctorChatID, pdf, fileName)
}

func composeAlert(h intake.Handoff) string {
	u := h.Analysis.UrgencyAssessment
	departments := make([]string, 0, len(u.RecommendedDepartments))
	for _, d := range u.RecommendedDepartments {
		departments = append(departments, d.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "【%s】問診が完了しました\n", u.Level.Label())
	fmt.Fprintf(&b, "患者: %s（%d歳・%s）\n", h.Patient.FullName(), h.Patient.AgeAt(h.CompletedAt), h.Patient.Gender.Label())
	fmt.Fprintf(&b, "受診区分: %s / 希望診療科: %s\n", h.Patient.VisitType.Label(), h.Patient.DepartmentName())
	fmt.Fprintf(&b, "判定理由: %s\n", u.Reason)
	fmt.Fprintf(&b, "推奨診療科: %s", strings.Join(departments, "、"))
	if u.Level == intake.UrgencyEmergency {
		fmt.Fprintf(&b, "\n%s", u.Action)
	}
	return b.String()
}

type line struct {
	text string
	size float64
	gap  float64
}

func heading(text string) line { return line{text: text, size: 14, gap: 22} }
func body(text string) line { return line{text: text, size: 11, gap: 16} }

// composeReport lays out the intake report independent of the PDF renderer.
func composeReport(h intake.Handoff) []line {
	p := h.Patient
	u := h.Analysis.UrgencyAssessment

	lines := []line{
		{text: "問診票（AI事前問診）", size: 20, gap: 30},
		body("作成日時: " + h.CompletedAt.Format(reportLayout)),
		body("受付ID: " + h.SessionID),
		heading("患者情報"),
		body("氏名: " + p.FullName()),
		body(fmt.Sprintf("生年月日: %04d年%d月%d日（%d歳）", p.BirthYear, p.BirthMonth, p.BirthDay, p.AgeAt(h.CompletedAt))),
		body("性別: " + p.Gender.Label()),
		body("受診区分: " + p.VisitType.Label()),
		body("希望診療科: " + p.DepartmentName()),
		heading("問診内容"),
	}
	for i, a := range h.Answers {
		lines = append(lines,
			body(fmt.Sprintf("質問%d: %s", i+1, a.Question)),
			body("回答: "+a.Answer),
			body("記録: "+a.Timestamp),
		)
	}

	lines = append(lines, heading("AI要約"))
	for _, l := range strings.Split(h.Analysis.Summary, "\n") {
		lines = append(lines, body(l))
	}

	lines = append(lines,
		heading("緊急度: "+u.Level.Label()),
		body("理由: "+u.Reason),
		body("推奨対応: "+u.Action),
	)
	for _, d := range u.RecommendedDepartments {
		lines = append(lines, body(fmt.Sprintf("推奨診療科: %s（%s）", d.Name, d.Reason)))
	}

	if h.Analysis.Diagnosis != "" {
		lines = append(lines, heading("診断支援（参考）"))
		for _, l := range strings.Split(h.Analysis.Diagnosis, "\n") {
			lines = append(lines, body(l))
		}
	}

	lines = append(lines,
		heading(intake.DisclaimerReference),
		body(intake.DisclaimerMain),
		body(intake.DisclaimerDoctorDecision),
		body(intake.DisclaimerLimitation),
	)
	return lines
}

func (s *Service) loadFont(pdf *gopdf.GoPdf) error {
	var errs []error
	for _, path := range s.fontPaths {
		err := pdf.AddTTFFont(fontName, path)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", path, err))
	}
	return fmt.Errorf("no Japanese TrueType font available (set REPORT_FONT_PATH): %w", errors.Join(errs...))
}

func (s *Service) renderPDF(lines []line) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetMargins(marginLeft, marginTop, marginLeft, marginTop)
	pdf.AddPage()

	if err := s.loadFont(&pdf); err != nil {
		return nil, err
	}

	for _, l := range lines {
		if err := pdf.SetFont(fontName, "", l.size); err != nil {
			return nil, err
		}
		if strings.TrimSpace(l.text) == "" {
			pdf.Br(l.gap / 2)
			continue
		}
		wrapped, err := pdf.SplitText(l.text, textWidth)
		if err != nil {
			return nil, err
		}
		for _, w := range wrapped {
			if pdf.GetY()+l.gap > pageBottom {
				pdf.AddPage()
			}
			if err := pdf.Cell(nil, w); err != nil {
				return nil, err
			}
			pdf.Br(l.gap)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
