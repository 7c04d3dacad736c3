package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"lab_lending_tool/inventory"
	"lab_lending_tool/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNameTaken = errors.New("a product with this name already exists")

func (r *Repo) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var p models.Product
	if err := r.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, normalize(err)
	}
	return &p, nil
}

type ProductQuery struct {
	Q        string
	LowStock int // >0 只看 in_stock < LowStock
	Page     int
	Size     int
}

type ProductPage struct {
	Items []models.ProductView `json:"items"`
	Total int64                `json:"total"`
}

func (r *Repo) ListProducts(ctx context.Context, q ProductQuery) (ProductPage, error) {
	page, size := clampPage(q.Page, q.Size)
	tx := r.DB.WithContext(ctx).Model(&models.Product{})
	if s := strings.TrimSpace(q.Q); s != "" {
		tx = tx.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if q.LowStock > 0 {
		tx = tx.Where("in_stock < ?", q.LowStock)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return ProductPage{}, err
	}
	var ps []models.Product
	if err := tx.Order("name ASC").Offset((page - 1) * size).Limit(size).Find(&ps).Error; err != nil {
		return ProductPage{}, err
	}
	out := ProductPage{Total: total, Items: make([]models.ProductView, 0, len(ps))}
	for _, p := range ps {
		out.Items = append(out.Items, p.View())
	}
	return out, nil
}

// AllProducts 导出和看板用
func (r *Repo) AllProducts(ctx context.Context) ([]models.Product, error) {
	var ps []models.Product
	err := r.DB.WithContext(ctx).Order("name ASC").Find(&ps).Error
	return ps, err
}

// ProductKeys returns the NameKey of every stored product.
func (r *Repo) ProductKeys(ctx context.Context) (map[string]bool, error) {
	var keys []string
	if err := r.DB.WithContext(ctx).Model(&models.Product{}).Pluck("name_key", &keys).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

func newProduct(in inventory.ProductInput) *models.Product {
	return &models.Product{
		ID:              uuid.NewString(),
		Name:            inventory.CleanName(in.Name),
		NameKey:         inventory.NameKey(in.Name),
		Description:     strings.TrimSpace(in.Description),
		Quantity:        in.Quantity,
		DamagedQuantity: in.DamagedQuantity,
		InStock:         in.InStock,
	}
}

func (r *Repo) CreateProduct(ctx context.Context, in inventory.ProductInput, actor Actor) (*models.Product, error) {
	if err := inventory.ValidateProduct(in); err != nil {
		return nil, err
	}
	p := newProduct(in)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			if err = normalize(err); errors.Is(err, ErrDuplicate) {
				return ErrNameTaken
			}
			return err
		}
		return logAction(tx, actor, models.ActionProductCreate, p.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProduct rewrites every editable field of product id.
func (r *Repo) UpdateProduct(ctx context.Context, id string, in inventory.ProductInput, actor Actor) (*models.Product, error) {
	if err := inventory.ValidateProduct(in); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, ErrNotFound
	}
	var p models.Product
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&p, "id = ?", id).Error; err != nil {
			return normalize(err)
		}
		key := inventory.NameKey(in.Name)
		if key != p.NameKey {
			var n int64
			if err := tx.Model(&models.Product{}).Where("name_key = ? AND id <> ?", key, id).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrNameTaken
			}
		}
		p.Name = inventory.CleanName(in.Name)
		p.NameKey = key
		p.Description = strings.TrimSpace(in.Description)
		p.Quantity = in.Quantity
		p.DamagedQuantity = in.DamagedQuantity
		p.InStock = in.InStock
		if err := tx.Save(&p).Error; err != nil {
			if err = normalize(err); errors.Is(err, ErrDuplicate) {
				return ErrNameTaken
			}
			return err
		}
		return logAction(tx, actor, models.ActionProductUpdate, p.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ImportProducts inserts a checked batch in one transaction. A name that was
// taken after the check fails the whole batch with ErrNameTaken.
func (r *Repo) ImportProducts(ctx context.Context, rows []inventory.ImportRow, actor Actor) (int, error) {
	ps := make([]*models.Product, 0, len(rows))
	for _, row := range rows {
		ps = append(ps, newProduct(row.Input()))
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(ps, 200).Error; err != nil {
			if err = normalize(err); errors.Is(err, ErrDuplicate) {
				return ErrNameTaken
			}
			return err
		}
		reason := fmt.Sprintf("%d rows", len(ps))
		return logAction(tx, actor, models.ActionProductImport, "", &reason)
	})
	if err != nil {
		return 0, err
	}
	return len(ps), nil
}

// lockProducts 按 id 排序加锁，避免死锁
func lockProducts(tx *gorm.DB, ids []string) (map[string]*models.Product, error) {
	uniq := map[string]bool{}
	var sorted []string
	for _, id := range ids {
		if !validID(id) {
			return nil, ErrUnknownProduct
		}
		if !uniq[id] {
			uniq[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Strings(sorted)
	var ps []models.Product
	if len(sorted) > 0 {
		if err := lockForUpdate(tx).Where("id IN ?", sorted).Order("id").Find(&ps).Error; err != nil {
			return nil, err
		}
	}
	out := make(map[string]*models.Product, len(ps))
	for i := range ps {
		out[ps[i].ID] = &ps[i]
	}
	for _, id := range sorted {
		if out[id] == nil {
			return nil, ErrUnknownProduct
		}
	}
	return out, nil
}
