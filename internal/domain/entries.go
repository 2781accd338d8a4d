package domain

const (
	// CompareMaxItems — максимальный размер набора сравнения.
	CompareMaxItems = 4
	// RecentlyViewedMaxItems — максимальная длина истории просмотров.
	RecentlyViewedMaxItems = 10
	// CartMaxQuantity — потолок количества одной позиции корзины.
	CartMaxQuantity = 9999
)

// AddCartQuantity складывает количества с насыщением на CartMaxQuantity.
func AddCartQuantity(a, b int) int {
	if a >= CartMaxQuantity || b >= CartMaxQuantity-a {
		return CartMaxQuantity
	}
	return a + b
}

// NormalizeCartItems отбрасывает позиции без productId или с количеством
// <= 0, склеивает повторы по productId и ограничивает количество сверху.
// Порядок первых вхождений сохраняется.
func NormalizeCartItems(items []CartLineItem) []CartLineItem {
	out := make([]CartLineItem, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			continue
		}
		if idx, ok := index[item.ProductID]; ok {
			out[idx].Quantity = AddCartQuantity(out[idx].Quantity, item.Quantity)
			continue
		}
		item.Quantity = AddCartQuantity(0, item.Quantity)
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}

// CartLineItem представляет одну позицию корзины.
// В корзине не больше одной позиции на ProductID.
type CartLineItem struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	// Quantity всегда в диапазоне 1..CartMaxQuantity.
	Quantity int    `json:"quantity"`
	ImageRef string `json:"imageRef"`
}

// CompareEntry — отвязанный снимок товара для сравнения.
type CompareEntry struct {
	ProductID     int64             `json:"productId"`
	Name          string            `json:"name"`
	Price         float64           `json:"price"`
	OriginalPrice *float64          `json:"originalPrice,omitempty"`
	ImageRef      string            `json:"imageRef"`
	Brand         string            `json:"brand,omitempty"`
	Rating        *float64          `json:"rating,omitempty"`
	CategoryRef   string            `json:"categoryRef,omitempty"`
	Specs         map[string]string `json:"specs"`
	Features      []string          `json:"features"`
	StockLevel    int               `json:"stockLevel"`
}

// RecentlyViewedEntry — снимок товара с моментом последнего просмотра.
type RecentlyViewedEntry struct {
	ProductID           int64    `json:"productId"`
	Name                string   `json:"name"`
	Price               float64  `json:"price"`
	OriginalPrice       *float64 `json:"originalPrice,omitempty"`
	ImageRef            string   `json:"imageRef"`
	Brand               string   `json:"brand,omitempty"`
	Rating              *float64 `json:"rating,omitempty"`
	CategoryRef         string   `json:"categoryRef,omitempty"`
	ViewedAtEpochMillis int64    `json:"viewedAtEpochMillis"`
}

// Clone возвращает глубокую копию записи сравнения.
func (e CompareEntry) Clone() CompareEntry {
	out := e
	out.OriginalPrice = cloneFloat(e.OriginalPrice)
	out.Rating = cloneFloat(e.Rating)
	if e.Specs != nil {
		out.Specs = make(map[string]string, len(e.Specs))
		for k, v := range e.Specs {
			out.Specs[k] = v
		}
	}
	if e.Features != nil {
		out.Features = append([]string(nil), e.Features...)
	}
	return out
}

// Clone возвращает глубокую копию записи истории.
func (e RecentlyViewedEntry) Clone() RecentlyViewedEntry {
	out := e
	out.OriginalPrice = cloneFloat(e.OriginalPrice)
	out.Rating = cloneFloat(e.Rating)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
