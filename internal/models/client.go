package models

// Client is a registered API consumer. SecretKey is the shared HMAC secret.
type Client struct {
	Name      string   `json:"name"`
	APIKey    string   `json:"apiKey"`
	SecretKey string   `json:"secretKey"`
	Roles     []string `json:"roles"`
}
