package domain

import (
	"strings"
	"time"
)

// Category описывает категорию в том виде, в каком её отдаёт каталог.
type Category struct {
	ID   string `json:"id,omitempty"`
	Slug string `json:"slug,omitempty"`
	Name string `json:"name,omitempty"`
}

// Product — представление товара, приходящее из каталога. Поля опциональны:
// разные эндпоинты заполняют разные подмножества. В хранилища Product не
// попадает, только нормализованные снимки.
type Product struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	Price         float64           `json:"price"`
	OriginalPrice *float64          `json:"originalPrice,omitempty"`
	Image         string            `json:"image,omitempty"`
	Images        []string          `json:"images,omitempty"`
	Brand         string            `json:"brand,omitempty"`
	Rating        *float64          `json:"rating,omitempty"`
	Category      *Category         `json:"category,omitempty"`
	CategoryID    string            `json:"categoryId,omitempty"`
	Specs         map[string]string `json:"specs,omitempty"`
	Features      []string          `json:"features,omitempty"`
	Stock         int               `json:"stock"`
}

// Validate проверяет минимальный набор полей, без которых снимок бессмысленен.
func (p Product) Validate() error {
	if p.ID <= 0 {
		return ErrProductIDRequired
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrProductNameRequired
	}
	return nil
}

// ImageRef выбирает основное изображение: Image, затем первый непустой элемент Images.
func (p Product) ImageRef() string {
	if img := strings.TrimSpace(p.Image); img != "" {
		return img
	}
	for _, img := range p.Images {
		if img = strings.TrimSpace(img); img != "" {
			return img
		}
	}
	return ""
}

// CategoryRef выбирает ссылку на категорию: slug, id вложенного объекта, затем CategoryID.
func (p Product) CategoryRef() string {
	if p.Category != nil {
		if slug := strings.TrimSpace(p.Category.Slug); slug != "" {
			return slug
		}
		if id := strings.TrimSpace(p.Category.ID); id != "" {
			return id
		}
	}
	return strings.TrimSpace(p.CategoryID)
}

// NewCartLineItem строит позицию корзины из товара. quantity <= 0 трактуется как 1.
func NewCartLineItem(p Product, quantity int) (CartLineItem, error) {
	if err := p.Validate(); err != nil {
		return CartLineItem{}, err
	}
	if quantity <= 0 {
		quantity = 1
	}
	return CartLineItem{
		ProductID: p.ID,
		Name:      strings.TrimSpace(p.Name),
		UnitPrice: p.Price,
		Quantity:  quantity,
		ImageRef:  p.ImageRef(),
	}, nil
}

// NewCompareEntry копирует в снимок только поля записи сравнения.
func NewCompareEntry(p Product) (CompareEntry, error) {
	if err := p.Validate(); err != nil {
		return CompareEntry{}, err
	}
	entry := CompareEntry{
		ProductID:     p.ID,
		Name:          strings.TrimSpace(p.Name),
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		ImageRef:      p.ImageRef(),
		Brand:         strings.TrimSpace(p.Brand),
		Rating:        p.Rating,
		CategoryRef:   p.CategoryRef(),
		Specs:         p.Specs,
		Features:      p.Features,
		StockLevel:    p.Stock,
	}
	entry = entry.Clone()
	if entry.Specs == nil {
		entry.Specs = map[string]string{}
	}
	if entry.Features == nil {
		entry.Features = []string{}
	}
	return entry, nil
}

// NewRecentlyViewedEntry строит снимок просмотра с меткой viewedAt.
func NewRecentlyViewedEntry(p Product, viewedAt time.Time) (RecentlyViewedEntry, error) {
	if err := p.Validate(); err != nil {
		return RecentlyViewedEntry{}, err
	}
	entry := RecentlyViewedEntry{
		ProductID:           p.ID,
		Name:                strings.TrimSpace(p.Name),
		Price:               p.Price,
		OriginalPrice:       p.OriginalPrice,
		ImageRef:            p.ImageRef(),
		Brand:               strings.TrimSpace(p.Brand),
		Rating:              p.Rating,
		CategoryRef:         p.CategoryRef(),
		ViewedAtEpochMillis: viewedAt.UnixMilli(),
	}
	return entry.Clone(), nil
}
