package listing

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

// Filler populates the create-listing form once photos are uploaded
type Filler interface {
	Fill(ctx context.Context, page interfaces.Page, article *models.Article) error
}

// AutoFiller assigns every mapped field programmatically
type AutoFiller struct {
	fields *FieldMap
	logger arbor.ILogger
}

func NewAutoFiller(fields *FieldMap, logger arbor.ILogger) *AutoFiller {
	return &AutoFiller{fields: fields, logger: logger}
}

func (f *AutoFiller) Fill(ctx context.Context, page interfaces.Page, article *models.Article) error {
	for _, fv := range f.fields.Values(article) {
		if err := setField(ctx, page, fv); err != nil {
			return fmt.Errorf("failed to fill %s: %w", fv.Spec.Field, err)
		}
		f.logger.Debug().
			Str("field", fv.Spec.Field).
			Str("kind", string(fv.Spec.Kind)).
			Msg("Field filled")
	}
	return nil
}

func setField(ctx context.Context, page interfaces.Page, fv FieldValue) error {
	switch fv.Spec.Kind {
	case KindText, KindTextarea, KindNumber:
		return page.SetValue(ctx, fv.Spec.Selector, fv.Value)
	case KindSelect:
		return page.SelectOption(ctx, fv.Spec.Selector, fv.Value)
	case KindSearch:
		if err := page.SetValue(ctx, fv.Spec.Selector, fv.Value); err != nil {
			return err
		}
		return page.SelectOption(ctx, "", fv.Value)
	}
	return fmt.Errorf("unknown field kind %q", fv.Spec.Kind)
}

// ManualFiller leaves the form to an operator in a visible browser and
// blocks until they press Enter
type ManualFiller struct {
	in     *bufio.Reader
	out    io.Writer
	logger arbor.ILogger
}

func NewManualFiller(in io.Reader, out io.Writer, logger arbor.ILogger) *ManualFiller {
	return &ManualFiller{in: bufio.NewReader(in), out: out, logger: logger}
}

func (f *ManualFiller) Fill(ctx context.Context, page interfaces.Page, article *models.Article) error {
	fmt.Fprintf(f.out, "\nComplete the listing form for %q (%s EUR) in the browser, then press Enter to submit...\n",
		article.Title, FormatPrice(article.Price))

	f.logger.Info().
		Str("article_id", article.ID).
		Msg("Waiting for manual form completion")

	done := make(chan error, 1)
	go func() {
		_, err := f.in.ReadString('\n')
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read operator confirmation: %w", err)
		}
		return nil
	}
}
