package scraper

// AuctionPage models one page of the auctions endpoint. Success is only
// sent by some deployments; a page is rejected when it is present and false.
type AuctionPage struct {
	Success       *bool     `json:"success,omitempty"`
	Cause         string    `json:"cause,omitempty"`
	Page          int       `json:"page"`
	TotalPages    int       `json:"totalPages"`
	TotalAuctions int       `json:"totalAuctions"`
	LastUpdated   int64     `json:"lastUpdated"`
	Auctions      []Auction `json:"auctions"`
}

// Auction is a single listing. Start and End are epoch milliseconds.
type Auction struct {
	UUID        string  `json:"uuid"`
	Auctioneer  string  `json:"auctioneer"`
	ItemName    string  `json:"item_name"`
	ItemBytes   string  `json:"item_bytes"`
	Start       int64   `json:"start"`
	End         int64   `json:"end"`
	Claimed     bool    `json:"claimed"`
	BIN         bool    `json:"bin"`
	StartingBid float64 `json:"starting_bid"`
	Category    string  `json:"category"`
	Tier        string  `json:"tier"`
}
