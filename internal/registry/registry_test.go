package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/repository"
	"github.com/arklim/auction-registry/internal/repository/memory"
)

func newTestRegistry() (*Registry, *memory.RecordStore[domain.Security, *domain.Security]) {
	securities := memory.NewRecordStore[domain.Security]()
	reg := New(nil,
		Bind[domain.Security](domain.TargetSecurity, securities),
		Bind[domain.ProductType](domain.TargetProductType, memory.NewRecordStore[domain.ProductType]()),
		Bind[domain.AuctionResult](domain.TargetAuctionResult, memory.NewRecordStore[domain.AuctionResult]()),
	)
	reg.newID = func() string { return "sec-1" }
	return reg, securities
}

func validSecurity() map[string]any {
	return map[string]any{
		"isin":          "US912828XG33",
		"name":          "UST 2.5% 2031",
		"issuer":        "US Treasury",
		"product_type":  "BOND",
		"currency":      "USD",
		"coupon_rate":   2.5,
		"maturity_date": "2031-05-15",
		"nominal_value": float64(1000),
	}
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	reg, _ := newTestRegistry()
	if reg.Supports("bond_future") {
		t.Fatalf("unexpected support for unbound type")
	}
	_, err := reg.Resolve(context.Background(), "bond_future", "x", false)
	if !errors.Is(err, domain.ErrUnknownTargetType) {
		t.Fatalf("expected ErrUnknownTargetType, got %v", err)
	}
}

func TestRegistryNormalizeCreate(t *testing.T) {
	reg, _ := newTestRegistry()

	got, err := reg.Normalize(domain.TargetSecurity, domain.OperationCreate, nil, validSecurity())
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got["nominal_value"] != int64(1000) {
		t.Fatalf("expected canonical int64 nominal value, got %#v", got["nominal_value"])
	}
	if got["maturity_date"] != "2031-05-15" {
		t.Fatalf("expected canonical date, got %#v", got["maturity_date"])
	}
}

func TestRegistryNormalizeRejectsContractViolations(t *testing.T) {
	reg, _ := newTestRegistry()

	cases := map[string]map[string]any{
		"unknown field": func() map[string]any { d := validSecurity(); d["colour"] = "red"; return d }(),
		"bad isin":      func() map[string]any { d := validSecurity(); d["isin"] = "short"; return d }(),
		"bad date":      func() map[string]any { d := validSecurity(); d["maturity_date"] = "15/05/2031"; return d }(),
		"missing name":  func() map[string]any { d := validSecurity(); delete(d, "name"); return d }(),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Normalize(domain.TargetSecurity, domain.OperationCreate, nil, data)
			if !errors.Is(err, domain.ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestRegistryCreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	created, err := reg.Create(ctx, domain.TargetSecurity, validSecurity(), at)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID != "sec-1" {
		t.Fatalf("expected allocated id sec-1, got %s", created.ID)
	}

	current, err := reg.Resolve(ctx, domain.TargetSecurity, "sec-1", false)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	normalized, err := reg.Normalize(domain.TargetSecurity, domain.OperationUpdate, current, map[string]any{"coupon_rate": "3.25"})
	if err != nil {
		t.Fatalf("Normalize update returned error: %v", err)
	}
	if len(normalized) != 1 || normalized["coupon_rate"] != 3.25 {
		t.Fatalf("expected only coupon_rate=3.25, got %#v", normalized)
	}

	updated, err := reg.Update(ctx, domain.TargetSecurity, "sec-1", normalized, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Fields["coupon_rate"] != 3.25 || updated.Fields["name"] != "UST 2.5% 2031" {
		t.Fatalf("expected merged update, got %#v", updated.Fields)
	}
	if !updated.CreatedAt.Equal(at) {
		t.Fatalf("update must keep created_at, got %s", updated.CreatedAt)
	}

	if err := reg.Delete(ctx, domain.TargetSecurity, "sec-1", at.Add(2*time.Hour)); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := reg.Resolve(ctx, domain.TargetSecurity, "sec-1", false); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected deleted record hidden, got %v", err)
	}
	tomb, err := reg.Resolve(ctx, domain.TargetSecurity, "sec-1", true)
	if err != nil || tomb.DeletedAt == nil {
		t.Fatalf("expected tombstoned record with includeSoftDeleted, got %v %v", tomb, err)
	}
	if err := reg.Delete(ctx, domain.TargetSecurity, "sec-1", at.Add(3*time.Hour)); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected second delete to fail with ErrNotFound, got %v", err)
	}
}

func TestRegistryAuctionCrossFieldRule(t *testing.T) {
	reg, _ := newTestRegistry()
	_, err := reg.Normalize(domain.TargetAuctionResult, domain.OperationCreate, nil, map[string]any{
		"security_id":     "sec-1",
		"auction_date":    "2026-04-01",
		"settlement_date": "2026-04-03",
		"offered_amount":  100,
		"accepted_amount": 150,
	})
	if !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("expected accepted > offered to be rejected, got %v", err)
	}
}

func TestRegistryFieldsSorted(t *testing.T) {
	reg, _ := newTestRegistry()
	fields, err := reg.Fields(domain.TargetProductType)
	if err != nil {
		t.Fatalf("Fields returned error: %v", err)
	}
	want := []string{"code", "description", "name"}
	if len(fields) != len(want) {
		t.Fatalf("expected %v, got %v", want, fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, fields)
		}
	}
}
