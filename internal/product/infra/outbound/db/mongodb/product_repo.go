package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	productDomain "github.com/davicafu/hexashop/internal/product/domain"
	sharedDomain "github.com/davicafu/hexashop/internal/shared/domain"
)

// ProductRepoMongoDB implementa ProductRepository para MongoDB.
type ProductRepoMongoDB struct {
	client   *mongo.Client
	products *mongo.Collection
}

// NewProductRepoMongoDB es el constructor del repositorio.
func NewProductRepoMongoDB(ctx context.Context, client *mongo.Client, dbName string) (*ProductRepoMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}

	return &ProductRepoMongoDB{
		client:   client,
		products: client.Database(dbName).Collection("products"),
	}, nil
}

// EnsureIndexes crea el índice único por nombre.
func (r *ProductRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := r.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// --- Structs de BSON para el mapeo ---
// Se definen localmente para no "contaminar" el dominio con tags de BSON.

type mongoVariant struct {
	Color       string  `bson:"color"`
	Stock       int     `bson:"stock"`
	Price       float64 `bson:"price"`
	Description string  `bson:"description,omitempty"`
}

type mongoProduct struct {
	ID          string         `bson:"_id"`
	Name        string         `bson:"name"`
	Price       float64        `bson:"price"`
	Description string         `bson:"description,omitempty"`
	Image       string         `bson:"image,omitempty"`
	Category    string         `bson:"category,omitempty"`
	Stock       int            `bson:"stock"`
	Variants    []mongoVariant `bson:"variants,omitempty"`
	CreatedAt   time.Time      `bson:"createdAt"`
	UpdatedAt   time.Time      `bson:"updatedAt"`
}

// appliedOrders no forma parte del mapeo: solo la tocan las operaciones de stock.
const appliedOrdersField = "appliedOrders"

// --- CRUD ---

func (r *ProductRepoMongoDB) Create(ctx context.Context, p *productDomain.Product) error {
	_, err := r.products.InsertOne(ctx, toMongoProduct(p))
	if mongo.IsDuplicateKeyError(err) {
		return productDomain.ErrProductAlreadyExists
	}
	return err
}

// UpdateFields hace $set solo de los campos del patch. Devuelve el documento
// previo y el resultado se reconstruye aplicando el mismo patch en memoria.
func (r *ProductRepoMongoDB) UpdateFields(ctx context.Context, id string, patch productDomain.ProductPatch, at time.Time) (*productDomain.Product, *productDomain.Product, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var mp mongoProduct
	err := r.products.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": patchToSet(patch, at)}, opts).Decode(&mp)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, nil, productDomain.ErrProductNotFound
		case mongo.IsDuplicateKeyError(err):
			return nil, nil, productDomain.ErrProductAlreadyExists
		}
		return nil, nil, err
	}

	before := fromMongoProduct(&mp)
	after := fromMongoProduct(&mp)
	after.Apply(patch, at)
	return before, after, nil
}

func (r *ProductRepoMongoDB) DeleteByID(ctx context.Context, id string) error {
	res, err := r.products.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return productDomain.ErrProductNotFound
	}
	return nil
}

// --- Lectura ---

func (r *ProductRepoMongoDB) GetByID(ctx context.Context, id string) (*productDomain.Product, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *ProductRepoMongoDB) FindByName(ctx context.Context, name string) (*productDomain.Product, error) {
	return r.findOne(ctx, bson.M{"name": name})
}

func (r *ProductRepoMongoDB) findOne(ctx context.Context, filter bson.M) (*productDomain.Product, error) {
	var mp mongoProduct
	err := r.products.FindOne(ctx, filter).Decode(&mp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, productDomain.ErrProductNotFound
		}
		return nil, err
	}
	return fromMongoProduct(&mp), nil
}

func (r *ProductRepoMongoDB) List(ctx context.Context, criteria sharedDomain.Criteria, page sharedDomain.Page, sort sharedDomain.Sort) ([]*productDomain.Product, int64, error) {
	filter := criteriaToMongoFilter(criteria)

	// Orden sin distinguir mayúsculas
	opts := options.Find().SetCollation(&options.Collation{Locale: "en", Strength: 2})
	if page.Size > 0 {
		opts.SetSkip(int64(page.Offset()))
		opts.SetLimit(int64(page.Size))
	}
	if sort.Field != "" {
		sortDir := 1
		if sort.Desc {
			sortDir = -1
		}
		opts.SetSort(bson.D{{Key: sort.Field, Value: sortDir}, {Key: "_id", Value: 1}})
	}

	cursor, err := r.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var products []*productDomain.Product
	for cursor.Next(ctx) {
		var mp mongoProduct
		if err := cursor.Decode(&mp); err != nil {
			return nil, 0, err
		}
		products = append(products, fromMongoProduct(&mp))
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, err
	}

	total, err := r.products.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// --- Stock ---

// ReduceStock resta qty con suelo 0 y anota el pedido en el mismo update atómico.
// El filtro excluye los documentos que ya tienen el pedido aplicado.
func (r *ProductRepoMongoDB) ReduceStock(ctx context.Context, productID, orderID string, qty int) (productDomain.StockChange, error) {
	filter := bson.M{"_id": productID, appliedOrdersField: bson.M{"$ne": orderID}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "stock", Value: bson.D{{Key: "$max", Value: bson.A{
				0,
				bson.D{{Key: "$subtract", Value: bson.A{"$stock", qty}}},
			}}}},
			{Key: appliedOrdersField, Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$" + appliedOrdersField, bson.A{}}}},
				bson.A{orderID},
			}}}},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
	}
	return r.applyStock(ctx, productID, filter, update)
}

// RestoreStock suma qty solo si el pedido figura como aplicado y lo retira.
func (r *ProductRepoMongoDB) RestoreStock(ctx context.Context, productID, orderID string, qty int) (productDomain.StockChange, error) {
	filter := bson.M{"_id": productID, appliedOrdersField: orderID}
	update := bson.M{
		"$inc":  bson.M{"stock": qty},
		"$pull": bson.M{appliedOrdersField: orderID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	return r.applyStock(ctx, productID, filter, update)
}

func (r *ProductRepoMongoDB) applyStock(ctx context.Context, productID string, filter bson.M, update interface{}) (productDomain.StockChange, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var mp mongoProduct
	err := r.products.FindOneAndUpdate(ctx, filter, update, opts).Decode(&mp)
	if err == nil {
		return productDomain.StockChange{ProductID: mp.ID, Name: mp.Name, Stock: mp.Stock, Applied: true}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return productDomain.StockChange{}, err
	}

	// Sin match: o no existe o el pedido ya estaba (o no estaba) aplicado.
	current, err := r.GetByID(ctx, productID)
	if err != nil {
		return productDomain.StockChange{}, err
	}
	return productDomain.StockChange{ProductID: current.ID, Name: current.Name, Stock: current.Stock}, nil
}

// --- Helpers de Mapeo y Conversión ---

// patchToSet traduce el patch a un documento $set. Los campos nil no se tocan.
func patchToSet(patch productDomain.ProductPatch, at time.Time) bson.M {
	set := bson.M{"updatedAt": at.UTC()}
	if patch.Name != nil {
		set["name"] = productDomain.CleanString(*patch.Name)
	}
	if patch.Price != nil {
		set["price"] = *patch.Price
	}
	if patch.Description != nil {
		set["description"] = productDomain.CleanString(*patch.Description)
	}
	if patch.Image != nil {
		set["image"] = *patch.Image
	}
	if patch.Category != nil {
		set["category"] = productDomain.CleanString(*patch.Category)
	}
	if patch.Stock != nil {
		set["stock"] = *patch.Stock
	}
	return set
}

func toMongoProduct(p *productDomain.Product) *mongoProduct {
	mp := &mongoProduct{
		ID: p.ID, Name: p.Name, Price: p.Price, Description: p.Description, Image: p.Image,
		Category: p.Category, Stock: p.Stock, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
	for _, v := range p.Variants {
		mp.Variants = append(mp.Variants, mongoVariant(v))
	}
	return mp
}

func fromMongoProduct(mp *mongoProduct) *productDomain.Product {
	p := &productDomain.Product{
		ID: mp.ID, Name: mp.Name, Price: mp.Price, Description: mp.Description, Image: mp.Image,
		Category: mp.Category, Stock: mp.Stock, CreatedAt: mp.CreatedAt, UpdatedAt: mp.UpdatedAt,
	}
	for _, v := range mp.Variants {
		p.Variants = append(p.Variants, productDomain.Variant(v))
	}
	return p
}

// criteriaToMongoFilter agrupa las condiciones por campo para que un rango
// (price >= x AND price <= y) quede en un único subdocumento.
func criteriaToMongoFilter(criteria sharedDomain.Criteria) bson.D {
	if criteria == nil {
		return bson.D{}
	}
	conds := criteria.ToConditions()
	if len(conds) == 0 {
		return bson.D{}
	}

	filter := bson.D{}
	index := make(map[string]int)
	for _, c := range conds {
		var ops bson.M
		switch c.Op {
		case sharedDomain.OpGt:
			ops = bson.M{"$gt": c.Value}
		case sharedDomain.OpGte:
			ops = bson.M{"$gte": c.Value}
		case sharedDomain.OpLt:
			ops = bson.M{"$lt": c.Value}
		case sharedDomain.OpLte:
			ops = bson.M{"$lte": c.Value}
		case sharedDomain.OpILike:
			ops = bson.M{"$regex": likeToRegex(fmt.Sprint(c.Value)), "$options": "i"}
		default:
			ops = bson.M{"$eq": c.Value}
		}

		if i, ok := index[c.Field]; ok {
			merged := filter[i].Value.(bson.M)
			for k, v := range ops {
				merged[k] = v
			}
			continue
		}
		index[c.Field] = len(filter)
		filter = append(filter, bson.E{Key: c.Field, Value: ops})
	}
	return filter
}

// likeToRegex traduce un patrón LIKE (con % como comodín) a una regex anclada.
func likeToRegex(pattern string) string {
	parts := strings.Split(pattern, "%")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}
