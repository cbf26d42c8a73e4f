package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ArticleStatus is the lifecycle state of a listing draft
type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusReady     ArticleStatus = "ready"
	ArticleStatusScheduled ArticleStatus = "scheduled"
	ArticleStatusPublished ArticleStatus = "published"
	ArticleStatusSold      ArticleStatus = "sold"
)

// Condition is the garment condition as offered by the marketplace form
type Condition string

const (
	ConditionNewWithTags    Condition = "new_with_tags"
	ConditionNewWithoutTags Condition = "new_without_tags"
	ConditionVeryGood       Condition = "very_good"
	ConditionGood           Condition = "good"
	ConditionSatisfactory   Condition = "satisfactory"
)

// Category is the three-level catalog path (e.g. Femmes / Vêtements / Robes)
type Category struct {
	Main string `json:"main"`
	Sub  string `json:"sub"`
	Item string `json:"item"`
}

// Article is a draft or finalized listing owned by a user.
// VintedURL is only ever set while Status is published or sold.
type Article struct {
	ID           string        `json:"id" validate:"required"`
	UserID       string        `json:"user_id"`
	Title        string        `json:"title" validate:"required,max=100"`
	Description  string        `json:"description"`
	Brand        string        `json:"brand"`
	Size         string        `json:"size"`
	Condition    Condition     `json:"condition" validate:"omitempty,oneof=new_with_tags new_without_tags very_good good satisfactory"`
	Category     Category      `json:"category"`
	Price        float64       `json:"price" validate:"gt=0"`
	Color        string        `json:"color"`
	Material     string        `json:"material"`
	Photos       []string      `json:"photos" validate:"min=1,dive,required"`
	Status       ArticleStatus `json:"status" badgerhold:"index"`
	VintedURL    *string       `json:"vinted_url,omitempty"`
	PublishedAt  *time.Time    `json:"published_at,omitempty"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

var articleValidator = validator.New()

// Validate checks the fields the listing form cannot do without.
// Photo references are not checked for URL shape here; the submission
// engine reports unsupported references with a dedicated message.
func (a *Article) Validate() error {
	if err := articleValidator.Struct(a); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidArticle, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidArticle, err)
	}
	return nil
}

// MarkPublished moves the article to published with the canonical listing URL
func (a *Article) MarkPublished(vintedURL string, at time.Time) {
	a.Status = ArticleStatusPublished
	a.VintedURL = &vintedURL
	a.PublishedAt = &at
	a.ErrorMessage = nil
	a.UpdatedAt = at
}

// MarkFailed records a publication failure. When revert is true the article
// goes back to draft; otherwise its status is left as-is.
func (a *Article) MarkFailed(message string, revert bool, at time.Time) {
	if revert {
		a.Status = ArticleStatusDraft
	}
	if a.Status != ArticleStatusPublished && a.Status != ArticleStatusSold {
		a.VintedURL = nil
		a.PublishedAt = nil
	}
	a.ErrorMessage = &message
	a.UpdatedAt = at
}
