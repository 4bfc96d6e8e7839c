package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"aiaxstock/internal/model"
	"aiaxstock/pkg/uid"
)

// MongoStore implements Store and CheckoutProcedure using MongoDB.
type MongoStore struct {
	client   *mongo.Client
	db       *mongo.Database
	stocks   *mongo.Collection
	sales    *mongo.Collection
	products *mongo.Collection
	types    *mongo.Collection
	durs     *mongo.Collection
	log      *logrus.Entry
}

// NewMongoStore connects to MongoDB and ensures indexes.
func NewMongoStore(uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		db:       db,
		stocks:   db.Collection("stocks"),
		sales:    db.Collection("sales"),
		products: db.Collection("products"),
		types:    db.Collection("account_types"),
		durs:     db.Collection("durations"),
		log:      logrus.WithField("component", "mongodb-store"),
	}

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.stocks: {
			{Keys: bson.D{{Key: "product_key", Value: 1}, {Key: "account_type", Value: 1}, {Key: "duration_code", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
		s.sales: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "admin_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			s.log.WithError(err).Warnf("failed to create indexes on %s", coll.Name())
		}
	}

	s.log.Infof("connected to %s", database)
	return s, nil
}

// saleDocument stores the price as a string so no precision is lost.
type saleDocument struct {
	ID           string     `bson:"_id"`
	LotID        string     `bson:"lot_id,omitempty"`
	ProductKey   string     `bson:"product_key"`
	AccountType  string     `bson:"account_type"`
	DurationCode string     `bson:"duration_code"`
	CreatedAt    time.Time  `bson:"created_at"`
	ExpiresAt    *time.Time `bson:"expires_at,omitempty"`
	AdminID      string     `bson:"admin_id"`
	OwnerID      string     `bson:"owner_id"`
	BuyerLink    string     `bson:"buyer_link,omitempty"`
	Price        *string    `bson:"price,omitempty"`
	Email        string     `bson:"email,omitempty"`
	Password     string     `bson:"password,omitempty"`
	ProfileName  string     `bson:"profile_name,omitempty"`
	PIN          string     `bson:"pin,omitempty"`
	Warranty     bool       `bson:"warranty"`
	Voided       bool       `bson:"voided"`
}

func toSaleDocument(s *model.Sale) saleDocument {
	doc := saleDocument{
		ID: s.ID, LotID: s.LotID, ProductKey: s.ProductKey, AccountType: s.AccountType,
		DurationCode: s.DurationCode, CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt,
		AdminID: s.AdminID, OwnerID: s.OwnerID, BuyerLink: s.BuyerLink,
		Email: s.Email, Password: s.Password, ProfileName: s.ProfileName, PIN: s.PIN,
		Warranty: s.Warranty, Voided: s.Voided,
	}
	if s.Price.Valid {
		p := s.Price.Decimal.String()
		doc.Price = &p
	}
	return doc
}

func (d saleDocument) toModel() model.Sale {
	sale := model.Sale{
		ID: d.ID, LotID: d.LotID, ProductKey: d.ProductKey, AccountType: d.AccountType,
		DurationCode: d.DurationCode, CreatedAt: d.CreatedAt, ExpiresAt: d.ExpiresAt,
		AdminID: d.AdminID, OwnerID: d.OwnerID, BuyerLink: d.BuyerLink,
		Email: d.Email, Password: d.Password, ProfileName: d.ProfileName, PIN: d.PIN,
		Warranty: d.Warranty, Voided: d.Voided,
	}
	if d.Price != nil {
		if p, err := decimal.NewFromString(*d.Price); err == nil {
			sale.Price = decimal.NewNullDecimal(p)
		}
	}
	return sale
}

func lotFilterDoc(f model.LotFilter) bson.M {
	filter := bson.M{}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if f.ProductKey != "" {
		filter["product_key"] = f.ProductKey
	}
	if f.AccountType != "" {
		filter["account_type"] = f.AccountType
	}
	if f.DurationCode != "" {
		filter["duration_code"] = f.DurationCode
	}
	if f.AvailableOnly {
		filter["archived"] = false
		filter["quantity"] = bson.M{"$gt": 0}
	}
	return filter
}

var fifoSort = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// ListLots returns lots matching filter, oldest first.
func (s *MongoStore) ListLots(ctx context.Context, filter model.LotFilter) ([]model.InventoryLot, error) {
	opts := options.Find().SetSort(fifoSort)
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := s.stocks.Find(ctx, lotFilterDoc(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	lots := []model.InventoryLot{}
	if err := cur.All(ctx, &lots); err != nil {
		return nil, fmt.Errorf("failed to decode lots: %w", err)
	}
	return lots, nil
}

// StockSummary runs the grouping as an aggregation pipeline.
func (s *MongoStore) StockSummary(ctx context.Context, filter model.LotFilter) ([]model.StockSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: lotFilterDoc(filter)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "product_key", Value: "$product_key"},
				{Key: "account_type", Value: "$account_type"},
				{Key: "duration_code", Value: "$duration_code"},
			}},
			{Key: "total_qty", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$max", Value: bson.A{"$quantity", 0}}}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id.product_key", Value: 1}, {Key: "_id.account_type", Value: 1}, {Key: "_id.duration_code", Value: 1}}}},
	}
	cur, err := s.stocks.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize stock: %w", err)
	}

	var rows []struct {
		ID       model.StockKey `bson:"_id"`
		TotalQty int            `bson:"total_qty"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}

	out := make([]model.StockSummary, 0, len(rows))
	for _, r := range rows {
		if filter.AvailableOnly && r.TotalQty <= 0 {
			continue
		}
		out = append(out, model.StockSummary{
			ProductKey: r.ID.ProductKey, AccountType: r.ID.AccountType, DurationCode: r.ID.DurationCode,
			TotalQty: r.TotalQty,
		})
	}
	return out, nil
}

// SoldCounts counts non-voided sales per pool.
func (s *MongoStore) SoldCounts(ctx context.Context, filter model.LotFilter) (map[model.StockKey]int, error) {
	filter.AvailableOnly = false
	match := lotFilterDoc(filter)
	match["voided"] = false
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "product_key", Value: "$product_key"},
				{Key: "account_type", Value: "$account_type"},
				{Key: "duration_code", Value: "$duration_code"},
			}},
			{Key: "sold", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := s.sales.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count sales: %w", err)
	}

	var rows []struct {
		ID   model.StockKey `bson:"_id"`
		Sold int            `bson:"sold"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode sale counts: %w", err)
	}

	out := make(map[model.StockKey]int, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Sold
	}
	return out, nil
}

// GetLot returns a lot by id.
func (s *MongoStore) GetLot(ctx context.Context, id string) (*model.InventoryLot, error) {
	var lot model.InventoryLot
	err := s.stocks.FindOne(ctx, bson.M{"_id": id}).Decode(&lot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return &lot, nil
}

// CreateLot inserts a new lot.
func (s *MongoStore) CreateLot(ctx context.Context, lot *model.InventoryLot) error {
	if _, err := s.stocks.InsertOne(ctx, lot); err != nil {
		return fmt.Errorf("failed to create lot: %w", err)
	}
	return nil
}

// UpdateLot applies patch to a lot.
func (s *MongoStore) UpdateLot(ctx context.Context, id string, patch model.LotPatch) error {
	set := bson.M{}
	if patch.Quantity != nil {
		set["quantity"] = *patch.Quantity
	}
	if patch.PremiumedAt != nil {
		set["premiumed_at"] = patch.PremiumedAt.UTC()
	}
	if patch.AutoExpireDays != nil {
		set["auto_expire_days"] = *patch.AutoExpireDays
	}
	if patch.Archived != nil {
		set["archived"] = *patch.Archived
	}
	if patch.Notes != nil {
		set["notes"] = *patch.Notes
	}
	if len(set) == 0 {
		_, err := s.GetLot(ctx, id)
		return err
	}

	res, err := s.stocks.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update lot: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLot removes a lot.
func (s *MongoStore) DeleteLot(ctx context.Context, id string) error {
	res, err := s.stocks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete lot: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func availableFilter(key model.StockKey) bson.M {
	return bson.M{
		"product_key":   key.ProductKey,
		"account_type":  key.AccountType,
		"duration_code": key.DurationCode,
		"archived":      false,
		"quantity":      bson.M{"$gt": 0},
	}
}

// OldestAvailableLot returns the FIFO candidate for key.
func (s *MongoStore) OldestAvailableLot(ctx context.Context, key model.StockKey) (*model.InventoryLot, error) {
	var lot model.InventoryLot
	err := s.stocks.FindOne(ctx, availableFilter(key), options.FindOne().SetSort(fifoSort)).Decode(&lot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoStock
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find candidate lot: %w", err)
	}
	return &lot, nil
}

// CompareAndSwapQuantity updates quantity only when it still equals current.
func (s *MongoStore) CompareAndSwapQuantity(ctx context.Context, id string, current, next int) (bool, error) {
	if next < 0 {
		return false, nil
	}
	res, err := s.stocks.UpdateOne(ctx,
		bson.M{"_id": id, "quantity": current},
		bson.M{"$set": bson.M{"quantity": next}})
	if err != nil {
		return false, fmt.Errorf("failed to swap quantity: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// GetAccount takes one unit with a single FindOneAndUpdate and then records
// the sale. A failed insert gives the unit back.
func (s *MongoStore) GetAccount(ctx context.Context, adminID string, key model.StockKey, now time.Time) (*model.Checkout, error) {
	opts := options.FindOneAndUpdate().
		SetSort(fifoSort).
		SetReturnDocument(options.Before)

	var lot model.InventoryLot
	err := s.stocks.FindOneAndUpdate(ctx, availableFilter(key),
		bson.M{"$inc": bson.M{"quantity": -1}}, opts).Decode(&lot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoStock
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take unit: %w", err)
	}

	sale := model.NewSale(uid.New(), &lot, adminID, now.UTC())
	if err := s.CreateSale(ctx, sale); err != nil {
		if _, rerr := s.stocks.UpdateOne(ctx, bson.M{"_id": lot.ID}, bson.M{"$inc": bson.M{"quantity": 1}}); rerr != nil {
			s.log.WithError(rerr).WithField("lot_id", lot.ID).Error("failed to restore unit after sale insert error")
		}
		return nil, err
	}
	return model.CheckoutFromSale(sale), nil
}

// CreateSale inserts a sale record.
func (s *MongoStore) CreateSale(ctx context.Context, sale *model.Sale) error {
	if _, err := s.sales.InsertOne(ctx, toSaleDocument(sale)); err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	return nil
}

// ListSales returns sales matching filter, newest first.
func (s *MongoStore) ListSales(ctx context.Context, filter model.SaleFilter) ([]model.Sale, int64, error) {
	q := bson.M{}
	if filter.OwnerID != "" {
		q["owner_id"] = filter.OwnerID
	}
	if filter.AdminID != "" {
		q["admin_id"] = filter.AdminID
	}
	if filter.ProductKey != "" {
		q["product_key"] = filter.ProductKey
	}
	if filter.BuyerLike != "" {
		q["buyer_link"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.BuyerLike), Options: "i"}
	}

	total, err := s.sales.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count sales: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit)).SetSkip(int64(filter.Offset))
	}
	cur, err := s.sales.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sales: %w", err)
	}
	var docs []saleDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode sales: %w", err)
	}

	sales := make([]model.Sale, 0, len(docs))
	for _, d := range docs {
		sales = append(sales, d.toModel())
	}
	return sales, total, nil
}

// GetSale returns a sale by id.
func (s *MongoStore) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	var doc saleDocument
	err := s.sales.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	sale := doc.toModel()
	return &sale, nil
}

// UpdateSale applies patch to a sale.
func (s *MongoStore) UpdateSale(ctx context.Context, id string, patch model.SalePatch) error {
	set := bson.M{}
	unset := bson.M{}
	if patch.BuyerLink != nil {
		set["buyer_link"] = *patch.BuyerLink
	}
	if patch.Price != nil {
		if patch.Price.Valid {
			set["price"] = patch.Price.Decimal.String()
		} else {
			unset["price"] = ""
		}
	}
	if patch.ExpiresAt != nil {
		set["expires_at"] = patch.ExpiresAt.UTC()
	}
	if patch.Warranty != nil {
		set["warranty"] = *patch.Warranty
	}
	if patch.Voided != nil {
		set["voided"] = *patch.Voided
	}
	if len(set) == 0 && len(unset) == 0 {
		_, err := s.GetSale(ctx, id)
		return err
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := s.sales.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update sale: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProducts returns the product catalog ordered by label.
func (s *MongoStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	out := []model.Product{}
	return out, s.findAll(ctx, s.products, bson.D{{Key: "label", Value: 1}}, &out)
}

// ListAccountTypes returns account types ordered by label.
func (s *MongoStore) ListAccountTypes(ctx context.Context) ([]model.AccountType, error) {
	out := []model.AccountType{}
	return out, s.findAll(ctx, s.types, bson.D{{Key: "label", Value: 1}}, &out)
}

// ListDurations returns durations ordered by seq.
func (s *MongoStore) ListDurations(ctx context.Context) ([]model.Duration, error) {
	out := []model.Duration{}
	return out, s.findAll(ctx, s.durs, bson.D{{Key: "seq", Value: 1}, {Key: "code", Value: 1}}, &out)
}

func (s *MongoStore) findAll(ctx context.Context, coll *mongo.Collection, sort bson.D, out interface{}) error {
	cur, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(sort))
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", coll.Name(), err)
	}
	return cur.All(ctx, out)
}

// SeedCatalog fills the catalog collections when products is empty.
func (s *MongoStore) SeedCatalog(ctx context.Context, c model.Catalog) error {
	n, err := s.products.CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if n > 0 {
		return nil
	}

	insert := func(coll *mongo.Collection, docs []interface{}) error {
		if len(docs) == 0 {
			return nil
		}
		_, err := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
		return err
	}

	products := make([]interface{}, len(c.Products))
	for i, p := range c.Products {
		products[i] = p
	}
	types := make([]interface{}, len(c.AccountTypes))
	for i, t := range c.AccountTypes {
		types[i] = t
	}
	durs := make([]interface{}, len(c.Durations))
	for i, d := range c.Durations {
		durs[i] = d
	}

	if err := insert(s.products, products); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	if err := insert(s.types, types); err != nil {
		return fmt.Errorf("failed to seed account types: %w", err)
	}
	if err := insert(s.durs, durs); err != nil {
		return fmt.Errorf("failed to seed durations: %w", err)
	}
	s.log.WithField("products", len(products)).Info("catalog seeded")
	return nil
}

// GetStats returns statistics about the store.
func (s *MongoStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["driver"] = "mongodb"

	lots, err := s.stocks.CountDocuments(ctx, bson.M{})
	if err != nil {
		return stats, err
	}
	stats["total_lots"] = lots

	sales, err := s.sales.CountDocuments(ctx, bson.M{})
	if err != nil {
		return stats, err
	}
	stats["total_sales"] = sales

	result := s.db.RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}})
	var dbStats bson.M
	if err := result.Decode(&dbStats); err == nil {
		switch size := dbStats["dataSize"].(type) {
		case int64:
			stats["db_size_bytes"] = size
		case int32:
			stats["db_size_bytes"] = int64(size)
		case float64:
			stats["db_size_bytes"] = int64(size)
		}
	}

	return stats, nil
}

// Close closes the MongoDB connection.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var (
	_ Store             = (*MongoStore)(nil)
	_ CheckoutProcedure = (*MongoStore)(nil)
	_ CatalogSeeder     = (*MongoStore)(nil)
)
