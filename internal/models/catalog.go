// catalog.go
package models

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Option struct for question choices
type Option struct {
	Value float64 `yaml:"value" json:"value"`
	Label string  `yaml:"label" json:"label"`
}

// Question struct to match the catalog structure
type Question struct {
	ID      int      `yaml:"id" json:"id"`
	Text    string   `yaml:"text" json:"text"`
	Options []Option `yaml:"options" json:"options"`
}

// Category groups questions into one wizard step.
type Category struct {
	Name      string     `yaml:"category" json:"category"`
	Questions []Question `yaml:"questions" json:"questions"`
}

// Catalog holds the whole questionnaire. It is never mutated after load.
type Catalog struct {
	Title       string     `yaml:"questionnaire" json:"questionnaire"`
	Description string     `yaml:"description" json:"description"`
	Scale       string     `yaml:"scale" json:"scale"`
	Categories  []Category `yaml:"categories" json:"categories"`

	questions []Question
	index     map[int]int
}

// LoadCatalog reads and parses the questionnaire file. JSON documents are
// accepted as well since they are valid YAML.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog unmarshals and validates a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	if err := catalog.build(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// NewCatalog assembles a catalog from already decoded categories.
func NewCatalog(title, description, scale string, categories []Category) (*Catalog, error) {
	catalog := &Catalog{
		Title:       title,
		Description: description,
		Scale:       scale,
		Categories:  categories,
	}
	if err := catalog.build(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (c *Catalog) build() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("%w: catalog has no categories", ErrInvalidCatalog)
	}

	c.questions = nil
	c.index = make(map[int]int)
	for _, cat := range c.Categories {
		if len(cat.Questions) == 0 {
			return fmt.Errorf("%w: category %q has no questions", ErrInvalidCatalog, cat.Name)
		}
		for _, q := range cat.Questions {
			if len(q.Options) == 0 {
				return fmt.Errorf("%w: question %d has no options", ErrInvalidCatalog, q.ID)
			}
			if _, dup := c.index[q.ID]; dup {
				return fmt.Errorf("%w: duplicate question id %d", ErrInvalidCatalog, q.ID)
			}
			c.index[q.ID] = len(c.questions)
			c.questions = append(c.questions, q)
		}
	}
	return nil
}

// Questions returns every question in catalog order.
func (c *Catalog) Questions() []Question {
	return c.questions
}

// Question looks a question up by id.
func (c *Catalog) Question(id int) (Question, bool) {
	i, ok := c.index[id]
	if !ok {
		return Question{}, false
	}
	return c.questions[i], true
}

func (c *Catalog) CategoryCount() int {
	return len(c.Categories)
}

// Category returns the category at index i.
func (c *Catalog) Category(i int) (Category, bool) {
	if i < 0 || i >= len(c.Categories) {
		return Category{}, false
	}
	return c.Categories[i], true
}

// OptionLabel returns the label of the option carrying value for the given question.
func (c *Catalog) OptionLabel(questionID int, value float64) (string, bool) {
	q, ok := c.Question(questionID)
	if !ok {
		return "", false
	}
	for _, o := range q.Options {
		if o.Value == value {
			return o.Label, true
		}
	}
	return "", false
}

// ValueRange reports the smallest and largest option value in the catalog.
func (c *Catalog) ValueRange() (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, q := range c.questions {
		for _, o := range q.Options {
			min = math.Min(min, o.Value)
			max = math.Max(max, o.Value)
		}
	}
	return min, max
}
