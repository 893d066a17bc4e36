package models

// CartItem is one line of the caller's cart as reported by the cart service.
type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Cart is the caller's cart snapshot.
type Cart struct {
	Items []CartItem `json:"items"`
}

// Product is a catalog record. Raw keeps the upstream document because the
// price field has no stable shape across catalog versions.
type Product struct {
	ID    string                 `json:"id"`
	Title string                 `json:"title"`
	Stock int                    `json:"stock"`
	Raw   map[string]interface{} `json:"-"`
}
