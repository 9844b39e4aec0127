package dump

import (
	"fmt"
	"strings"
)

// Category identifies one of the three record categories the export covers.
type Category string

const (
	CategoryAuthors  Category = "authors"
	CategoryEditions Category = "editions"
	CategoryWorks    Category = "works"
)

// AllCategories lists the categories in their canonical processing order.
var AllCategories = []Category{CategoryAuthors, CategoryEditions, CategoryWorks}

// ParseCategory converts user input into a Category.
func ParseCategory(value string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(value))) {
	case CategoryAuthors:
		return CategoryAuthors, nil
	case CategoryEditions:
		return CategoryEditions, nil
	case CategoryWorks:
		return CategoryWorks, nil
	default:
		return "", fmt.Errorf("unknown category %q (valid: authors, editions, works)", value)
	}
}

func (c Category) String() string {
	return string(c)
}

// SourceDescriptor identifies one remote dump file.
type SourceDescriptor struct {
	Name     string
	Category Category
	URL      string
}

// NewSourceDescriptor builds the descriptor for a category against the given
// dump host base URL.
func NewSourceDescriptor(baseURL string, category Category) SourceDescriptor {
	name := fmt.Sprintf("ol_dump_%s_latest.txt.gz", category)
	return SourceDescriptor{
		Name:     name,
		Category: category,
		URL:      strings.TrimRight(baseURL, "/") + "/" + name,
	}
}

// Sources returns descriptors for the requested categories, or all categories
// when none are named.
func Sources(baseURL string, categories []string) ([]SourceDescriptor, error) {
	selected := AllCategories
	if len(categories) > 0 {
		selected = make([]Category, 0, len(categories))
		for _, raw := range categories {
			category, err := ParseCategory(raw)
			if err != nil {
				return nil, err
			}
			selected = append(selected, category)
		}
	}
	descriptors := make([]SourceDescriptor, 0, len(selected))
	for _, category := range selected {
		descriptors = append(descriptors, NewSourceDescriptor(baseURL, category))
	}
	return descriptors, nil
}
