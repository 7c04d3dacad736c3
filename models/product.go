package models

import "time"

const ProductTable = "lab_products"

// Product 库存元件；issued = quantity - damagedQuantity - inStock，只计算不落库
type Product struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string    `gorm:"size:200;not null" json:"productName"`
	NameKey         string    `gorm:"size:200;uniqueIndex;not null" json:"-"`
	Description     string    `gorm:"size:500" json:"description,omitempty"`
	Quantity        int       `gorm:"not null;default:0" json:"quantity"`
	DamagedQuantity int       `gorm:"not null;default:0" json:"damagedQuantity"`
	InStock         int       `gorm:"not null;default:0" json:"inStock"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (Product) TableName() string { return ProductTable }

// Issued is the number of units currently out on loan.
func (p Product) Issued() int {
	return p.Quantity - p.DamagedQuantity - p.InStock
}

// ProductView is the wire shape with the derived issued count.
type ProductView struct {
	Product
	Issued int `json:"issued"`
}

func (p Product) View() ProductView {
	return ProductView{Product: p, Issued: p.Issued()}
}
