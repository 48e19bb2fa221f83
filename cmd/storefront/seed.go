package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/patisserie-labs/storefront/internal/app"
	"github.com/patisserie-labs/storefront/internal/app/domain/catalog"
	"github.com/patisserie-labs/storefront/internal/app/domain/coupon"
	catalogsvc "github.com/patisserie-labs/storefront/internal/app/services/catalog"
	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

//go:embed seed.yaml
var defaultSeed []byte

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo categories, products and coupons into the configured store",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "seed YAML file (defaults to the bundled demo catalogue)")
}

type seedData struct {
	Categories []seedCategory `yaml:"categories"`
	Coupons    []seedCoupon   `yaml:"coupons"`
}

type seedCategory struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	ImageURL    string        `yaml:"image_url"`
	Position    int           `yaml:"position"`
	Products    []seedProduct `yaml:"products"`
}

type seedProduct struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Price       string   `yaml:"price"`
	SalePrice   string   `yaml:"sale_price"`
	Images      []string `yaml:"images"`
	Tags        []string `yaml:"tags"`
	Weight      string   `yaml:"weight"`
	Stock       int      `yaml:"stock"`
	Featured    bool     `yaml:"featured"`
}

type seedCoupon struct {
	Code           string `yaml:"code"`
	Description    string `yaml:"description"`
	Type           string `yaml:"type"`
	Value          string `yaml:"value"`
	MaxDiscount    string `yaml:"max_discount"`
	MinOrderAmount string `yaml:"min_order_amount"`
	UsageLimit     int    `yaml:"usage_limit"`
	PerUserLimit   int    `yaml:"per_user_limit"`
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig("seed")
	if err != nil {
		return err
	}

	raw := defaultSeed
	if seedFile != "" {
		if raw, err = os.ReadFile(seedFile); err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
	}
	var data seedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	application, err := app.Build(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer application.Close()

	return seed(cmd.Context(), application, data, log)
}

// seed creates whatever is missing. Existing categories, products and coupon
// codes are left untouched so the command can be rerun.
func seed(ctx context.Context, a *app.Application, data seedData, log *logger.Logger) error {
	var created int
	for _, sc := range data.Categories {
		category, err := a.Catalog.GetCategoryBySlug(ctx, catalogsvc.Slugify(sc.Name), true)
		switch {
		case err == nil:
		case svcerrors.Is(err, svcerrors.CodeNotFound):
			category, err = a.Catalog.CreateCategory(ctx, catalog.Category{
				Name:        sc.Name,
				Description: sc.Description,
				ImageURL:    sc.ImageURL,
				Position:    sc.Position,
				Active:      true,
			})
			if err != nil {
				return fmt.Errorf("create category %s: %w", sc.Name, err)
			}
			created++
		default:
			return fmt.Errorf("lookup category %s: %w", sc.Name, err)
		}

		for _, sp := range sc.Products {
			if _, err := a.Catalog.GetProduct(ctx, catalogsvc.Slugify(sp.Name), true); err == nil {
				continue
			} else if !svcerrors.Is(err, svcerrors.CodeNotFound) {
				return fmt.Errorf("lookup product %s: %w", sp.Name, err)
			}
			p, err := sp.toProduct(category.ID)
			if err != nil {
				return err
			}
			if _, err := a.Catalog.CreateProduct(ctx, p); err != nil {
				return fmt.Errorf("create product %s: %w", sp.Name, err)
			}
			created++
		}
	}

	for _, sc := range data.Coupons {
		c, err := sc.toCoupon()
		if err != nil {
			return err
		}
		if _, err := a.Coupons.Create(ctx, c); err != nil {
			if svcerrors.Is(err, svcerrors.CodeConflict) {
				continue
			}
			return fmt.Errorf("create coupon %s: %w", sc.Code, err)
		}
		created++
	}

	log.WithField("created", created).Info("seed complete")
	return nil
}

func (sp seedProduct) toProduct(categoryID string) (catalog.Product, error) {
	price, err := decimal.NewFromString(sp.Price)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("product %s: price: %w", sp.Name, err)
	}
	p := catalog.Product{
		CategoryID:  categoryID,
		Name:        sp.Name,
		Description: sp.Description,
		Price:       price,
		Images:      sp.Images,
		Tags:        sp.Tags,
		Weight:      sp.Weight,
		Stock:       sp.Stock,
		Featured:    sp.Featured,
		Active:      true,
	}
	if sp.SalePrice != "" {
		sale, err := decimal.NewFromString(sp.SalePrice)
		if err != nil {
			return catalog.Product{}, fmt.Errorf("product %s: sale_price: %w", sp.Name, err)
		}
		p.SalePrice = decimal.NewNullDecimal(sale)
	}
	return p, nil
}

func (sc seedCoupon) toCoupon() (coupon.Coupon, error) {
	c := coupon.Coupon{
		Code:         sc.Code,
		Description:  sc.Description,
		Type:         sc.Type,
		UsageLimit:   sc.UsageLimit,
		PerUserLimit: sc.PerUserLimit,
		Active:       true,
	}
	var err error
	if c.Value, err = optionalAmount(sc.Value); err != nil {
		return coupon.Coupon{}, fmt.Errorf("coupon %s: value: %w", sc.Code, err)
	}
	if c.MaxDiscount, err = optionalAmount(sc.MaxDiscount); err != nil {
		return coupon.Coupon{}, fmt.Errorf("coupon %s: max_discount: %w", sc.Code, err)
	}
	if c.MinOrderAmount, err = optionalAmount(sc.MinOrderAmount); err != nil {
		return coupon.Coupon{}, fmt.Errorf("coupon %s: min_order_amount: %w", sc.Code, err)
	}
	return c, nil
}

func optionalAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
