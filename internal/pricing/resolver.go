package pricing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/currency"

	apperrors "github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const defaultFetchConcurrency = 8

// ProductFetcher loads one catalog record on behalf of the caller.
type ProductFetcher interface {
	FetchProduct(ctx context.Context, productID, token string) (*models.Product, error)
}

// ResolvedLine is a cart line with its product and price attached.
type ResolvedLine struct {
	Product   *models.Product
	Quantity  int
	UnitPrice models.Money
	LineTotal models.Money
	Strategy  string
}

// Resolver turns cart lines into priced lines.
type Resolver struct {
	fetcher         ProductFetcher
	strategies      []Strategy
	defaultCurrency string
	concurrency     int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStrategies replaces the extraction strategy list.
func WithStrategies(s []Strategy) Option {
	return func(r *Resolver) { r.strategies = s }
}

// WithConcurrency bounds the number of parallel product fetches.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func NewResolver(fetcher ProductFetcher, defaultCurrency string, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:         fetcher,
		strategies:      DefaultStrategies,
		defaultCurrency: defaultCurrency,
		concurrency:     defaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches every product and prices every line. When several lines
// fail, the error of the first failing line is returned.
func (r *Resolver) Resolve(ctx context.Context, items []models.CartItem, token string) ([]ResolvedLine, error) {
	ctx, span := otel.Tracer("pricing").Start(ctx, "pricing.Resolve")
	defer span.End()
	span.SetAttributes(attribute.Int("lines", len(items)))

	lines := make([]ResolvedLine, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			product, err := r.fetcher.FetchProduct(ctx, item.ProductID, token)
			if err != nil {
				errs[i] = err
				return nil
			}
			unit, strategy, err := r.UnitPrice(product)
			if err != nil {
				errs[i] = err
				return nil
			}
			lines[i] = ResolvedLine{
				Product:   product,
				Quantity:  item.Quantity,
				UnitPrice: unit,
				LineTotal: unit.Mul(item.Quantity),
				Strategy:  strategy,
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	return lines, nil
}

// UnitPrice applies the strategies in order to one product.
func (r *Resolver) UnitPrice(p *models.Product) (models.Money, string, error) {
	for _, s := range r.strategies {
		if amount, ok := s.Extract(p.Raw); ok {
			return models.Money{Amount: amount, Currency: r.currencyOf(p.Raw)}, s.Name, nil
		}
	}
	return models.Money{}, "", apperrors.NewInvalidProductPrice(p.ID, Redact(p.Raw))
}

func (r *Resolver) currencyOf(doc map[string]interface{}) string {
	candidates := []interface{}{doc["currency"]}
	if price, ok := doc["price"].(map[string]interface{}); ok {
		candidates = append([]interface{}{price["currency"]}, candidates...)
	}
	for _, c := range candidates {
		s, ok := c.(string)
		if !ok {
			continue
		}
		if unit, err := currency.ParseISO(strings.TrimSpace(s)); err == nil {
			return unit.String()
		}
	}
	return r.defaultCurrency
}

// Total sums line totals. Every line must share the first line's currency.
func Total(lines []ResolvedLine, defaultCurrency string) (models.Money, error) {
	total := models.Money{Amount: decimal.Zero, Currency: defaultCurrency}
	if len(lines) == 0 {
		return total, nil
	}
	total.Currency = lines[0].LineTotal.Currency
	for _, l := range lines {
		if l.LineTotal.Currency != total.Currency {
			return models.Money{}, apperrors.NewValidationError("items", "cart mixes currencies "+total.Currency+" and "+l.LineTotal.Currency)
		}
		total = total.Add(l.LineTotal)
	}
	return total, nil
}

// AssertSufficientStock fails when the product cannot cover the requested quantity.
func AssertSufficientStock(p *models.Product, requested int) error {
	if p.Stock < requested {
		return apperrors.NewInsufficientStock(p.Title, requested, p.Stock)
	}
	return nil
}
