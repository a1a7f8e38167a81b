package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teespace/storefront/internal/domain/catalog"
	"github.com/teespace/storefront/internal/domain/coupon"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func twoItemBasket() []BasketLine {
	return []BasketLine{
		{
			Product: catalog.Product{
				ID: "tshirt", Name: "Classic T-Shirt", CategoryID: "apparel",
				RegularPrice: d("600"), SalePrice: d("500"), Quantity: 10,
			},
			Quantity: 1,
		},
		{
			Product: catalog.Product{
				ID: "hoodie", Name: "Zip Hoodie", CategoryID: "apparel",
				RegularPrice: d("900"), SalePrice: d("700"), Quantity: 10,
			},
			Quantity: 1,
		},
	}
}

func tenPercent(minPurchase string) coupon.Coupon {
	return coupon.Coupon{
		ID:           "ten",
		Code:         "TEN",
		DiscountType: coupon.DiscountPercentage,
		Value:        d("10"),
		MinPurchase:  d(minPurchase),
		StartDate:    testNow.AddDate(0, -1, 0),
		ExpiryDate:   testNow.AddDate(0, 1, 0),
		Active:       true,
	}
}

func TestBuild_WithPercentageCoupon(t *testing.T) {
	o := Build(BuildInput{
		OrderID:       "ORD2026000001",
		UserID:        "u1",
		PaymentMethod: OnlinePayment,
		Lines:         twoItemBasket(),
		Coupons:       []coupon.Coupon{tenPercent("500")},
		Now:           testNow,
	})

	require.Len(t, o.Items, 2)

	assert.True(t, o.Items[0].CouponDiscount.Equal(d("50")))
	assert.True(t, o.Items[0].Price.Equal(d("450")))
	assert.True(t, o.Items[1].CouponDiscount.Equal(d("70")))
	assert.True(t, o.Items[1].Price.Equal(d("630")))

	assert.True(t, o.TotalMRP.Equal(d("1500")))
	assert.True(t, o.TotalPrice.Equal(d("1200")))
	assert.True(t, o.TotalOfferDiscount.Equal(d("300")))
	assert.True(t, o.TotalCouponDiscount.Equal(d("120")))
	assert.True(t, o.TotalAmount.Equal(d("1080")), "got %s", o.TotalAmount)

	// Final totals start equal to the as-placed totals.
	assert.True(t, o.FinalTotalAmount.Equal(o.TotalAmount))
	assert.True(t, o.FinalTotalCouponDiscount.Equal(o.TotalCouponDiscount))
	assert.True(t, o.FinalTotalPrice.Equal(o.TotalPrice))

	for _, it := range o.Items {
		assert.Equal(t, StatusPending, it.Status)
		assert.True(t, it.FinalPaidAmount.Equal(it.Price))
		assert.True(t, it.FinalCouponDiscount.Equal(it.CouponDiscount))
		assert.NotEmpty(t, it.ID)
	}

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.EqualValues(t, 1, o.Version)
	require.Len(t, o.AppliedCoupons, 1)
	assert.Equal(t, "TEN", o.AppliedCoupons[0].Code)
}

func TestBuild_NoCoupons(t *testing.T) {
	o := Build(BuildInput{
		OrderID:       "ORD2026000002",
		UserID:        "u1",
		PaymentMethod: CashOnDelivery,
		Lines:         twoItemBasket(),
		Now:           testNow,
	})

	assert.True(t, o.TotalCouponDiscount.IsZero())
	assert.True(t, o.TotalAmount.Equal(d("1200")))
	assert.True(t, o.Items[0].Price.Equal(d("500")))
	assert.Empty(t, o.AppliedCoupons)
}

func TestBuild_SnapshotsProductFields(t *testing.T) {
	lines := twoItemBasket()
	lines[0].Product.ImageURL = "/images/tshirt.jpg"

	o := Build(BuildInput{
		OrderID: "ORD2026000003", UserID: "u1",
		PaymentMethod: OnlinePayment, Lines: lines, Now: testNow,
	})

	assert.Equal(t, "Classic T-Shirt", o.Items[0].ProductName)
	assert.Equal(t, "/images/tshirt.jpg", o.Items[0].ProductImage)
	assert.Equal(t, "apparel", o.Items[0].CategoryID)
	assert.True(t, o.Items[0].OfferDiscount.Equal(d("100")))
	assert.True(t, o.Items[0].TotalMRP.Equal(d("600")))
}
