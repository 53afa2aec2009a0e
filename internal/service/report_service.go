package service

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"oral_exam_backend/internal/model"

	"github.com/mandolyte/mdtopdf"
)

//go:embed fonts/*.ttf
var reportFonts embed.FS

// reportFont is a Unicode TrueType family registered for every text style,
// since the core PDF fonts only cover Latin-1.
const reportFont = "dejavu"

var reportFontFaces = map[string]string{
	"":   "fonts/DejaVuSansCondensed.ttf",
	"B":  "fonts/DejaVuSansCondensed-Bold.ttf",
	"I":  "fonts/DejaVuSansCondensed-Oblique.ttf",
	"BI": "fonts/DejaVuSansCondensed-BoldOblique.ttf",
}

var examStatusLabels = map[model.ExamStatus]string{
	model.ExamInProgress: "идёт",
	model.ExamCompleted:  "завершён",
	model.ExamFailed:     "не сдан",
}

var moodLabels = map[model.TeacherMood]string{
	model.MoodNeutral:      "нейтральное",
	model.MoodHappy:        "довольное",
	model.MoodDisappointed: "разочарованное",
	model.MoodAngry:        "раздражённое",
}

func statusLabel(status model.ExamStatus) string {
	if l, ok := examStatusLabels[status]; ok {
		return l
	}
	return string(status)
}

func moodLabel(mood model.TeacherMood) string {
	if l, ok := moodLabels[mood]; ok {
		return l
	}
	return string(mood)
}

// ExamReportMarkdown renders an exam transcript: every question in order
// with the student's answers and the teacher's feedback.
func ExamReportMarkdown(session *model.ExamSession) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", session.Subject)
	fmt.Fprintf(&sb, "- Преподаватель: %s\n", session.TeacherName)
	fmt.Fprintf(&sb, "- Статус: %s\n", statusLabel(session.Status))
	fmt.Fprintf(&sb, "- Итоговое настроение: %s\n", moodLabel(session.TeacherMood))
	fmt.Fprintf(&sb, "- Начало: %s\n", session.CreatedAt.Format("02.01.2006 15:04"))
	if session.CompletedAt != nil {
		fmt.Fprintf(&sb, "- Завершение: %s\n", session.CompletedAt.Format("02.01.2006 15:04"))
	}

	var correct, graded int
	for _, q := range session.Questions {
		title := "Вопрос"
		if q.IsFollowUp {
			title = "Уточняющий вопрос"
		}
		fmt.Fprintf(&sb, "\n## %s %d\n\n%s\n", title, q.QuestionIndex+1, q.QuestionText)
		for _, a := range q.Answers {
			fmt.Fprintf(&sb, "\n> %s\n", oneLine(a.TranscribedText))
			if a.IsCorrect == nil {
				sb.WriteString("\n*Не оценено*\n")
				continue
			}
			graded++
			verdict := "Неверно"
			if *a.IsCorrect {
				correct++
				verdict = "Верно"
			}
			fmt.Fprintf(&sb, "\n**%s.** %s\n", verdict, oneLine(a.AIFeedback))
		}
	}
	fmt.Fprintf(&sb, "\n---\n\nВерных ответов: %d из %d\n", correct, graded)
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newReportRenderer(pdfPath string) (*mdtopdf.PdfRenderer, error) {
	r := mdtopdf.NewPdfRenderer("P", "A4", pdfPath, "", nil, mdtopdf.LIGHT)
	for style, file := range reportFontFaces {
		data, err := reportFonts.ReadFile(file)
		if err != nil {
			return nil, err
		}
		r.Pdf.AddUTF8FontFromBytes(reportFont, style, data)
	}

	stylers := []*mdtopdf.Styler{
		&r.Normal, &r.Link, &r.Backtick, &r.Code, &r.Blockquote,
		&r.H1, &r.H2, &r.H3, &r.H4, &r.H5, &r.H6,
		&r.THeader, &r.TBody,
	}
	for _, s := range stylers {
		s.Font = reportFont
	}
	// the root paragraph state was captured with the theme font
	r.UpdateParagraphStyler(r.Normal)

	if err := r.Pdf.Error(); err != nil {
		return nil, fmt.Errorf("fpdf.AddUTF8FontFromBytes() > %w", err)
	}
	return r, nil
}

// RenderPDF converts markdown to a PDF document.
func RenderPDF(markdown string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "exam-report-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "report.pdf")
	renderer, err := newReportRenderer(pdfPath)
	if err != nil {
		return nil, err
	}
	if err := renderer.Process([]byte(markdown)); err != nil {
		return nil, fmt.Errorf("renderer.Process() > %w", err)
	}
	return os.ReadFile(pdfPath)
}

// ExportReport renders the caller's exam transcript as PDF.
func (s *ExamService) ExportReport(ctx context.Context, userID, sessionID uint) ([]byte, error) {
	session, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return RenderPDF(ExamReportMarkdown(session))
}
