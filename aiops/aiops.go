// CLAUDE:SUMMARY AI request dispatcher: maps AI tools to fixed Gemini prompts, post-processes replies (fences, slide outlines, WAV) and classifies failures.
// CLAUDE:DEPENDS aiclient, transform, toolreg, dataconv, imgconv, docpipe
// CLAUDE:EXPORTS Dispatcher, New, Config, ChatStore, ParseOutline
// Package aiops runs the tools whose work happens on the remote model. One
// call per run, no retry: a failed call surfaces as a typed error result and
// the user decides whether to try again.
package aiops

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/hazyhaar/docforge/aiclient"
	"github.com/hazyhaar/docforge/dataconv"
	"github.com/hazyhaar/docforge/imgconv"
	"github.com/hazyhaar/docforge/toolreg"
	"github.com/hazyhaar/docforge/transform"
)

// Speech output format of the TTS model: 16-bit mono PCM.
const (
	SpeechSampleRate = 24000
	SpeechChannels   = 1
	DefaultVoice     = "Kore"
)

var pdfMagic = []byte("%PDF-")

// Config configures the dispatcher.
type Config struct {
	Client *aiclient.Client `json:"-" yaml:"-"`

	// Voice is the prebuilt TTS voice (default: Kore).
	Voice string `json:"voice" yaml:"voice"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Client == nil {
		c.Client = aiclient.New(aiclient.Config{Logger: c.Logger})
	}
}

type opFunc func(ctx context.Context, item transform.WorkItem) (transform.Result, error)

// Dispatcher executes AI tools.
type Dispatcher struct {
	cfg    Config
	client *aiclient.Client
	logger *slog.Logger
	ops    map[transform.ToolID]opFunc
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	cfg.defaults()
	d := &Dispatcher{cfg: cfg, client: cfg.Client, logger: cfg.Logger}
	d.ops = map[transform.ToolID]opFunc{
		transform.PDFToWord:          d.pdfToWord,
		transform.PDFToExcel:         d.tabular(promptExcel),
		transform.PDFBankStatement:   d.tabular(promptBankStatement),
		transform.PDFToPowerPoint:    d.pdfToOutline,
		transform.PDFOCR:             d.ocr,
		transform.SmartOCR:           d.ocr,
		transform.MagicSummarizer:    d.text(func(in string, _ transform.Params) string { return promptSummarize(in) }),
		transform.UniversalTranslate: d.text(func(in string, p transform.Params) string { return promptTranslate(in, p.TargetLanguage) }),
		transform.GrammarPolish:      d.text(func(in string, _ transform.Params) string { return promptGrammar(in) }),
		transform.CodeMorph:          d.text(func(in string, p transform.Params) string { return promptCode(in, p.TargetLanguage) }),
		transform.TextToSpeech:       d.speak,
	}
	return d
}

// Run executes item. Client failures are classified, never retried.
func (d *Dispatcher) Run(ctx context.Context, item transform.WorkItem) (res transform.Result) {
	op, ok := d.ops[item.Tool]
	if !ok {
		return transform.Failed(transform.ValidationError(fmt.Sprintf("aiops: unknown tool %q", item.Tool)))
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("aiops: panic", "tool", item.Tool, "panic", r, "stack", string(debug.Stack()))
			res = transform.Failed(transform.ProcessingError(string(item.Tool), fmt.Errorf("panic: %v", r)))
		}
	}()

	out, err := op(ctx, item)
	if err != nil {
		te := classify(err)
		d.logger.Warn("aiops: failed", "tool", item.Tool, "kind", te.Kind, "error", err)
		return transform.Failed(te)
	}
	return out
}

// Tools returns the descriptors of every AI tool.
func (d *Dispatcher) Tools() []toolreg.Descriptor {
	pdf := []string{".pdf", "application/pdf"}
	lang := []string{toolreg.ParamTargetLanguage}
	ds := []toolreg.Descriptor{
		{ID: transform.PDFToWord, Title: "PDF to Word", Category: transform.CategoryConvertFrom,
			Description: "Turn a PDF into editable Markdown or plain text.", MinFiles: 1, MaxFiles: 1, Accept: pdf,
			Enums: map[string][]string{toolreg.ParamOutputFormat: {"markdown", "text"}}},
		{ID: transform.PDFToExcel, Title: "PDF to Excel", Category: transform.CategoryConvertFrom,
			Description: "Pull the main table of a PDF into CSV.", MinFiles: 1, MaxFiles: 1, Accept: pdf},
		{ID: transform.PDFToPowerPoint, Title: "PDF to PowerPoint", Category: transform.CategoryConvertFrom,
			Description: "Outline a PDF as presentation slides.", MinFiles: 1, MaxFiles: 1, Accept: pdf},
		{ID: transform.PDFOCR, Title: "PDF OCR", Category: transform.CategoryConvertFrom,
			Description: "Read the text of a scanned PDF.", MinFiles: 1, MaxFiles: 1, Accept: pdf},
		{ID: transform.PDFBankStatement, Title: "Bank Statement Converter", Category: transform.CategoryConvertFrom,
			Description: "Extract bank statement transactions into CSV.", MinFiles: 1, MaxFiles: 1, Accept: pdf},
		{ID: transform.MagicSummarizer, Title: "Magic Summarizer", Category: transform.CategoryAI,
			Description: "Summarize long text into its key points.", TextInput: true},
		{ID: transform.UniversalTranslate, Title: "Universal Translator", Category: transform.CategoryAI,
			Description: "Translate text into another language.", TextInput: true, Requires: lang},
		{ID: transform.GrammarPolish, Title: "Grammar Polish", Category: transform.CategoryAI,
			Description: "Fix grammar and spelling while keeping the meaning.", TextInput: true},
		{ID: transform.CodeMorph, Title: "Code Morph", Category: transform.CategoryAI,
			Description: "Convert code to another programming language.", TextInput: true, Requires: lang},
		{ID: transform.SmartOCR, Title: "Smart OCR", Category: transform.CategoryAI,
			Description: "Extract text from an image or scanned PDF.", MinFiles: 1, MaxFiles: 1,
			Accept: []string{"image/*", ".pdf", "application/pdf"}},
		{ID: transform.TextToSpeech, Title: "Text to Speech", Category: transform.CategoryAudio,
			Description: "Read text aloud as a WAV file.", TextInput: true},
	}
	for i := range ds {
		ds[i].Target = transform.TargetAI
		ds[i].Handler = d.Run
	}
	return ds
}

// pdfInput returns the primary file after checking it is a non-empty PDF.
func pdfInput(item transform.WorkItem) ([]byte, error) {
	if item.Primary == nil || len(item.Primary.Data) == 0 {
		return nil, transform.InvalidInputError("The document is empty.")
	}
	if !bytes.HasPrefix(item.Primary.Data, pdfMagic) {
		return nil, transform.InvalidInputError(fmt.Sprintf("%s is not a PDF document.", item.Primary.Name))
	}
	return item.Primary.Data, nil
}

func (d *Dispatcher) askPDF(ctx context.Context, item transform.WorkItem, prompt string) (string, error) {
	data, err := pdfInput(item)
	if err != nil {
		return "", err
	}
	return d.client.Generate(ctx, aiclient.GenerateRequest{
		Parts: []aiclient.Part{aiclient.InlinePart("application/pdf", data), aiclient.TextPart(prompt)},
	})
}

func (d *Dispatcher) pdfToWord(ctx context.Context, item transform.WorkItem) (transform.Result, error) {
	prompt, ext := promptWordMarkdown, "md"
	if item.Params.OutputFormat == "text" {
		prompt, ext = promptWordText, "txt"
	}
	out, err := d.askPDF(ctx, item, prompt)
	if err != nil {
		return transform.Result{}, err
	}
	return transform.Text(strings.TrimSpace(out), ext), nil
}

func (d *Dispatcher) tabular(prompt string) opFunc {
	return func(ctx context.Context, item transform.WorkItem) (transform.Result, error) {
		out, err := d.askPDF(ctx, item, prompt)
		if err != nil {
			return transform.Result{}, err
		}
		csv := StripFences(out)
		if csv == "" {
			return transform.Result{}, transform.NewError(transform.KindRemote, "the AI service returned no table", nil)
		}
		return transform.Text(csv, "csv"), nil
	}
}

func (d *Dispatcher) pdfToOutline(ctx context.Context, item transform.WorkItem) (transform.Result, error) {
	out, err := d.askPDF(ctx, item, promptOutline)
	if err != nil {
		return transform.Result{}, err
	}
	slides, err := ParseOutline(out)
	if err != nil {
		return transform.Result{}, transform.NewError(transform.KindRemote, err.Error(), nil)
	}
	return transform.Text(RenderOutline(slides), "md").WithNote(fmt.Sprintf("%d slides", len(slides))), nil
}

// ocr accepts a PDF or an image. Line breaks of the reply are kept.
func (d *Dispatcher) ocr(ctx context.Context, item transform.WorkItem) (transform.Result, error) {
	if item.Primary == nil || len(item.Primary.Data) == 0 {
		return transform.Result{}, transform.InvalidInputError("The document is empty.")
	}
	data := item.Primary.Data

	var parts []aiclient.Part
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		parts = []aiclient.Part{aiclient.InlinePart("application/pdf", data), aiclient.TextPart(promptPDFOCR)}
	case item.Tool == transform.PDFOCR:
		return transform.Result{}, transform.InvalidInputError(fmt.Sprintf("%s is not a PDF document.", item.Primary.Name))
	default:
		kind := imgconv.Detect(data)
		if kind == imgconv.KindUnknown {
			return transform.Result{}, transform.UnsupportedFormatError(fmt.Sprintf("%s is not a PDF or a supported image.", item.Primary.Name))
		}
		parts = []aiclient.Part{aiclient.InlinePart(kind.MIME(), data), aiclient.TextPart(promptImageOCR)}
	}

	out, err := d.client.Generate(ctx, aiclient.GenerateRequest{Parts: parts})
	if err != nil {
		return transform.Result{}, err
	}
	return transform.Text(strings.Trim(out, "\n"), "txt"), nil
}

func (d *Dispatcher) text(prompt func(string, transform.Params) string) opFunc {
	return func(ctx context.Context, item transform.WorkItem) (transform.Result, error) {
		in := strings.TrimSpace(item.Input)
		if in == "" {
			return transform.Result{}, transform.InvalidInputError("Please enter some text.")
		}
		out, err := d.client.Generate(ctx, aiclient.GenerateRequest{
			Parts: []aiclient.Part{aiclient.TextPart(prompt(in, item.Params))},
		})
		if err != nil {
			return transform.Result{}, err
		}
		return transform.Text(strings.TrimSpace(out), "txt"), nil
	}
}

func (d *Dispatcher) speak(ctx context.Context, item transform.WorkItem) (transform.Result, error) {
	in := strings.TrimSpace(item.Input)
	if in == "" {
		return transform.Result{}, transform.InvalidInputError("Please enter some text.")
	}
	pcm, err := d.client.Speak(ctx, in, d.cfg.Voice)
	if err != nil {
		return transform.Result{}, err
	}
	wav := dataconv.PCMToWAV(pcm, SpeechSampleRate, SpeechChannels)
	return transform.Binary(wav, "audio/wav", "wav").Named("speech.wav"), nil
}
