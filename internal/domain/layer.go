package domain

// Layer is local-only panel meta; it is never synchronized.
type Layer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
	ZOrder  int    `json:"zOrder"`
}
