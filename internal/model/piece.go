package model

// Piece is the ledger's current record of one dyed item.
type Piece struct {
	ItemUUID string `gorm:"primaryKey;column:item_uuid;size:64" json:"item_uuid"`
	ItemKind string `gorm:"size:64;not null;index" json:"item_kind"`
	Owner    string `gorm:"size:32;not null;index" json:"owner"`
	Location string `gorm:"size:64;not null" json:"location"`
	LastSeen int64  `gorm:"not null" json:"last_seen"` // epoch seconds
	HexCode  string `gorm:"size:6;not null;index" json:"hex_code"`
}

// TableName pins the ledger table name.
func (Piece) TableName() string { return "pieces" }
