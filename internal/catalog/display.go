package catalog

import "strings"

// DisplayOptions carries the per-deployment presentation settings.
type DisplayOptions struct {
	// ImageBaseURL is joined with relative image paths. Either an absolute
	// site/CDN root ("https://cdn.example.com") or a relative asset path
	// ("assets/images").
	ImageBaseURL string

	// Currency is appended to formatted prices, e.g. "₪".
	Currency string
}

// DisplayProduct is the presentation projection of a Product.
type DisplayProduct struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PriceFormatted string `json:"price_formatted"`
	Image          string `json:"image"`
	Category       string `json:"category"`
	URL            string `json:"url"`
	IsPurchasable  bool   `json:"is_purchasable"`
	IsInStock      bool   `json:"is_in_stock"`
	HasOptions     bool   `json:"has_options"`
	ProductType    string `json:"product_type"`
}

// ToDisplay projects a product at index in store into its display form.
// Pure: the same inputs always produce the same output.
func ToDisplay(p Product, index int, store string, opts DisplayOptions) DisplayProduct {
	return DisplayProduct{
		ID:             Ref{Store: store, Index: index}.String(),
		Name:           p.Name,
		PriceFormatted: FormatPrice(p.Price, opts.Currency),
		Image:          ResolveImageURL(p.Image, opts.ImageBaseURL),
		Category:       p.Category,
		URL:            p.URL,
		IsPurchasable:  true,
		IsInStock:      true,
		HasOptions:     false,
		ProductType:    "simple",
	}
}

// FormatPrice renders "{price} {currency}", treating an empty price as "0".
func FormatPrice(price, currency string) string {
	price = strings.TrimSpace(price)
	if price == "" {
		price = "0"
	}
	if currency == "" {
		return price
	}
	return price + " " + currency
}

var absoluteImagePrefixes = []string{"http://", "https://", "data:", "//"}

// ResolveImageURL returns image unchanged when it already carries a scheme;
// otherwise it strips leading slashes and joins it to base.
func ResolveImageURL(image, base string) string {
	if image == "" {
		return ""
	}
	lower := strings.ToLower(image)
	for _, prefix := range absoluteImagePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return image
		}
	}
	rel := strings.TrimLeft(image, "/")
	base = strings.TrimRight(base, "/")
	if base == "" {
		return rel
	}
	return base + "/" + rel
}
