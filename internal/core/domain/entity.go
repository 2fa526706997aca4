package domain

import (
	"fmt"
	"strings"
	"time"
)

// TargetType names the closed set of record kinds a change request may target.
type TargetType string

const (
	TargetSecurity      TargetType = "security"
	TargetAuctionResult TargetType = "auction_result"
	TargetProductType   TargetType = "product_type"
)

// TargetTypes lists every supported target type.
func TargetTypes() []TargetType {
	return []TargetType{TargetSecurity, TargetAuctionResult, TargetProductType}
}

// NormalizeTargetType lowercases the supplied name without validating it.
func NormalizeTargetType(raw string) TargetType {
	return TargetType(strings.ToLower(strings.TrimSpace(raw)))
}

// ParseTargetType resolves raw to one of the supported target types.
func ParseTargetType(raw string) (TargetType, error) {
	t := NormalizeTargetType(raw)
	for _, known := range TargetTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTargetType, raw)
}

// DateLayout is the canonical wire format for calendar dates on records.
const DateLayout = "2006-01-02"

// RecordMeta carries identity and bookkeeping shared by all registry records.
// A non-nil DeletedAt is the soft-delete tombstone.
type RecordMeta struct {
	ID        string     `mapstructure:"-"`
	CreatedAt time.Time  `mapstructure:"-"`
	UpdatedAt time.Time  `mapstructure:"-"`
	DeletedAt *time.Time `mapstructure:"-"`
}

// Metadata exposes the embedded bookkeeping fields.
func (m *RecordMeta) Metadata() *RecordMeta {
	return m
}

// IsDeleted reports whether the record carries a tombstone.
func (m RecordMeta) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Security is a tradeable instrument record.
type Security struct {
	RecordMeta   `mapstructure:",squash"`
	ISIN         string    `mapstructure:"isin" validate:"required,len=12,alphanum"`
	Name         string    `mapstructure:"name" validate:"required,max=200"`
	Issuer       string    `mapstructure:"issuer" validate:"required,max=200"`
	ProductType  string    `mapstructure:"product_type" validate:"required,max=32"`
	Currency     string    `mapstructure:"currency" validate:"required,len=3,uppercase"`
	CouponRate   float64   `mapstructure:"coupon_rate" validate:"gte=0,lte=100"`
	MaturityDate time.Time `mapstructure:"maturity_date" validate:"required"`
	NominalValue int64     `mapstructure:"nominal_value" validate:"gt=0"`
}

// Fields returns the canonical field map used for previews.
func (s Security) Fields() map[string]any {
	return map[string]any{
		"isin":          s.ISIN,
		"name":          s.Name,
		"issuer":        s.Issuer,
		"product_type":  s.ProductType,
		"currency":      s.Currency,
		"coupon_rate":   s.CouponRate,
		"maturity_date": formatDate(s.MaturityDate),
		"nominal_value": s.NominalValue,
	}
}

// UniqueKey is the ISIN, unique across live securities.
func (s Security) UniqueKey() string {
	return s.ISIN
}

// AuctionResult records the outcome of a primary market auction.
type AuctionResult struct {
	RecordMeta           `mapstructure:",squash"`
	SecurityID           string    `mapstructure:"security_id" validate:"required"`
	AuctionDate          time.Time `mapstructure:"auction_date" validate:"required"`
	SettlementDate       time.Time `mapstructure:"settlement_date" validate:"required"`
	OfferedAmount        int64     `mapstructure:"offered_amount" validate:"gt=0"`
	AcceptedAmount       int64     `mapstructure:"accepted_amount" validate:"gte=0,ltefield=OfferedAmount"`
	WeightedAverageYield float64   `mapstructure:"weighted_average_yield" validate:"gte=0"`
	BidToCover           float64   `mapstructure:"bid_to_cover" validate:"gte=0"`
}

// Fields returns the canonical field map used for previews.
func (a AuctionResult) Fields() map[string]any {
	return map[string]any{
		"security_id":            a.SecurityID,
		"auction_date":           formatDate(a.AuctionDate),
		"settlement_date":        formatDate(a.SettlementDate),
		"offered_amount":         a.OfferedAmount,
		"accepted_amount":        a.AcceptedAmount,
		"weighted_average_yield": a.WeightedAverageYield,
		"bid_to_cover":           a.BidToCover,
	}
}

// ProductType is a reference-data classification for securities.
type ProductType struct {
	RecordMeta  `mapstructure:",squash"`
	Code        string `mapstructure:"code" validate:"required,max=32"`
	Name        string `mapstructure:"name" validate:"required,max=120"`
	Description string `mapstructure:"description" validate:"max=500"`
}

// Fields returns the canonical field map used for previews.
func (p ProductType) Fields() map[string]any {
	return map[string]any{
		"code":        p.Code,
		"name":        p.Name,
		"description": p.Description,
	}
}

// UniqueKey is the classification code, unique across live product types.
func (p ProductType) UniqueKey() string {
	return p.Code
}

// UniquelyKeyed is implemented by record types with a natural key that live records may not share.
type UniquelyKeyed interface {
	UniqueKey() string
}

// Entity is a type-erased snapshot of a registry record.
type Entity struct {
	Type      TargetType
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// RecordPointer is satisfied by pointers to registry record structs.
type RecordPointer[T any] interface {
	*T
	Metadata() *RecordMeta
	Fields() map[string]any
}
