package domain

// Campaign is the business record a pipeline job generates creatives for.
type Campaign struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customerId"`
	BusinessName string `json:"businessName"`
	City         string `json:"city"`
	Phone        string `json:"phone"`
	LogoURL      string `json:"logoUrl,omitempty"`
	PrimaryColor string `json:"primaryColor,omitempty"`
	CustomText   string `json:"customText,omitempty"`
}
