package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// upsertAttempts bounds retries when two first-adds race to create a cart.
const upsertAttempts = 2

// MongoStore keeps one document per user in the carts collection. Every
// mutation is a single findOneAndUpdate on that document.
type MongoStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection("carts"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *MongoStore) GetByUser(ctx context.Context, userID string) (domain.Cart, error) {
	filter := bson.M{"user_id": userID}
	cart, err := decodeCart(m.collection.FindOne(ctx, filter))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{}, ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, nil
}

func (m *MongoStore) UpsertItem(ctx context.Context, userID string, item domain.CartItem) (domain.Cart, error) {
	var lastErr error
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		cart, err := m.incrementItem(ctx, userID, item.Product.ID, item.Quantity)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, ErrItemNotFound) {
			return domain.Cart{}, err
		}

		cart, err = m.pushItem(ctx, userID, item)
		if err == nil {
			return cart, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return domain.Cart{}, fmt.Errorf("failed to add new item: %w", err)
		}
		// lost the insert race on the unique user_id index, the cart exists now
		lastErr = err
	}
	return domain.Cart{}, fmt.Errorf("failed to add item after %d attempts: %w", upsertAttempts, lastErr)
}

func (m *MongoStore) incrementItem(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	filter := bson.M{
		"user_id":          userID,
		"items.product.id": productID,
	}
	update := bson.M{
		"$inc": bson.M{"items.$[elem].quantity": quantity},
		"$set": bson.M{"updated_at": m.now()},
	}
	opts := options.FindOneAndUpdate().
		SetArrayFilters(elemFilter(productID)).
		SetReturnDocument(options.After)

	cart, err := decodeCart(m.collection.FindOneAndUpdate(ctx, filter, update, opts))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{}, ErrItemNotFound
		}
		return domain.Cart{}, fmt.Errorf("failed to update existing item: %w", err)
	}
	return cart, nil
}

func (m *MongoStore) pushItem(ctx context.Context, userID string, item domain.CartItem) (domain.Cart, error) {
	now := m.now()
	item.AddedAt = now

	filter := bson.M{
		"user_id":          userID,
		"items.product.id": bson.M{"$ne": item.Product.ID},
	}
	update := bson.M{
		"$push": bson.M{"items": item},
		"$set":  bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	return decodeCart(m.collection.FindOneAndUpdate(ctx, filter, update, opts))
}

func (m *MongoStore) SetItemQuantity(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if quantity == 0 {
		return m.RemoveItem(ctx, userID, productID)
	}

	filter := bson.M{
		"user_id":          userID,
		"items.product.id": productID,
	}
	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": quantity,
			"updated_at":             m.now(),
		},
	}
	opts := options.FindOneAndUpdate().
		SetArrayFilters(elemFilter(productID)).
		SetReturnDocument(options.After)

	cart, err := decodeCart(m.collection.FindOneAndUpdate(ctx, filter, update, opts))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{}, ErrItemNotFound
		}
		return domain.Cart{}, fmt.Errorf("failed to update item quantity: %w", err)
	}
	return cart, nil
}

func (m *MongoStore) RemoveItem(ctx context.Context, userID, productID string) (domain.Cart, error) {
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"product.id": productID},
		},
		"$set": bson.M{"updated_at": m.now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	cart, err := decodeCart(m.collection.FindOneAndUpdate(ctx, filter, update, opts))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{}, ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("failed to remove item: %w", err)
	}
	return cart, nil
}

func (m *MongoStore) Clear(ctx context.Context, userID string) (domain.Cart, error) {
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$set": bson.M{
			"items":      []domain.CartItem{},
			"updated_at": m.now(),
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	cart, err := decodeCart(m.collection.FindOneAndUpdate(ctx, filter, update, opts))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Cart{}, ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("failed to clear cart: %w", err)
	}
	return cart, nil
}

// CartRetention is how long an untouched cart is kept before the TTL index
// removes it.
const CartRetention = 90 * 24 * time.Hour

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(CartRetention / time.Second)),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, readpref.Primary())
}

func elemFilter(productID string) options.ArrayFilters {
	return options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.product.id": productID},
		},
	}
}

func decodeCart(res *mongo.SingleResult) (domain.Cart, error) {
	var cart domain.Cart
	if err := res.Decode(&cart); err != nil {
		return domain.Cart{}, err
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart, nil
}
