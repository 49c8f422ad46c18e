package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carrier-service/carriers"
	"carrier-service/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// ErrConcurrentUpdate is returned when the stored item changed between the
// read and the conditional write.
var ErrConcurrentUpdate = errors.New("repository: carrier configuration changed concurrently")

// DynamoAPI is the subset of the DynamoDB client used by the repository.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoCarrierConfigRepository implements CarrierConfigRepository using
// DynamoDB. Items are keyed by user_id (partition) and carrier_name (sort).
type DynamoCarrierConfigRepository struct {
	client DynamoAPI
	table  string
}

var _ CarrierConfigRepository = (*DynamoCarrierConfigRepository)(nil)

// NewDynamoCarrierConfigRepository creates a new DynamoDB backed carrier
// configuration repository.
func NewDynamoCarrierConfigRepository(client DynamoAPI, table string) *DynamoCarrierConfigRepository {
	return &DynamoCarrierConfigRepository{client: client, table: table}
}

// Credentials and settings are stored as JSON strings so decimals and
// timestamps keep their JSON encoding.
type ddbCarrierConfig struct {
	UserID        string `dynamodbav:"user_id"`
	CarrierName   string `dynamodbav:"carrier_name"`
	ID            string `dynamodbav:"id"`
	AccountNumber string `dynamodbav:"account_number,omitempty"`
	Credentials   string `dynamodbav:"credentials"`
	Settings      string `dynamodbav:"settings"`
	IsActive      bool   `dynamodbav:"is_active"`
	CreatedAt     string `dynamodbav:"created_at"`
	UpdatedAt     string `dynamodbav:"updated_at"`
}

func (d ddbCarrierConfig) toModel() (*models.CarrierConfiguration, error) {
	cfg := &models.CarrierConfiguration{
		UserID:        d.UserID,
		CarrierName:   d.CarrierName,
		AccountNumber: d.AccountNumber,
		IsActive:      d.IsActive,
	}
	if id, err := uuid.Parse(d.ID); err == nil {
		cfg.ID = id
	}
	if d.Credentials != "" {
		if err := json.Unmarshal([]byte(d.Credentials), &cfg.Credentials); err != nil {
			return nil, fmt.Errorf("unmarshal credentials: %w", err)
		}
	}
	if d.Settings != "" {
		if err := json.Unmarshal([]byte(d.Settings), &cfg.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339, d.CreatedAt); err == nil {
		cfg.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, d.UpdatedAt); err == nil {
		cfg.UpdatedAt = t
	}
	return cfg, nil
}

func (r *DynamoCarrierConfigRepository) key(userID, carrierName string) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"user_id": userID, "carrier_name": carrierName})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return key, nil
}

func (r *DynamoCarrierConfigRepository) Get(ctx context.Context, userID, carrierName string) (*models.CarrierConfiguration, error) {
	key, err := r.key(userID, carrierName)
	if err != nil {
		return nil, err
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.table,
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, carriers.ErrConfigurationNotFound
	}

	var d ddbCarrierConfig
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return d.toModel()
}

func (r *DynamoCarrierConfigRepository) ListByUser(ctx context.Context, userID string) ([]models.CarrierConfiguration, error) {
	return r.query(ctx, userID, false)
}

func (r *DynamoCarrierConfigRepository) ListActive(ctx context.Context, userID string) ([]models.CarrierConfiguration, error) {
	return r.query(ctx, userID, true)
}

func (r *DynamoCarrierConfigRepository) query(ctx context.Context, userID string, activeOnly bool) ([]models.CarrierConfiguration, error) {
	uid, err := attributevalue.Marshal(userID)
	if err != nil {
		return nil, fmt.Errorf("marshal user id: %w", err)
	}
	in := &dynamodb.QueryInput{
		TableName:                 &r.table,
		KeyConditionExpression:    aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":uid": uid},
	}
	if activeOnly {
		in.FilterExpression = aws.String("is_active = :active")
		in.ExpressionAttributeValues[":active"] = &types.AttributeValueMemberBOOL{Value: true}
	}

	var cfgs []models.CarrierConfiguration
	for {
		out, err := r.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamodb Query failed: %w", err)
		}
		for _, item := range out.Items {
			var d ddbCarrierConfig
			if err := attributevalue.UnmarshalMap(item, &d); err != nil {
				return nil, fmt.Errorf("unmarshal item: %w", err)
			}
			cfg, err := d.toModel()
			if err != nil {
				return nil, err
			}
			cfgs = append(cfgs, *cfg)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return cfgs, nil
}

func (r *DynamoCarrierConfigRepository) Upsert(ctx context.Context, cfg *models.CarrierConfiguration) error {
	now := time.Now().UTC()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	creds, err := json.Marshal(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	item, err := attributevalue.MarshalMap(ddbCarrierConfig{
		UserID:        cfg.UserID,
		CarrierName:   cfg.CarrierName,
		ID:            cfg.ID.String(),
		AccountNumber: cfg.AccountNumber,
		Credentials:   string(creds),
		Settings:      string(settings),
		IsActive:      cfg.IsActive,
		CreatedAt:     cfg.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     cfg.UpdatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal carrier configuration: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.table,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

func (r *DynamoCarrierConfigRepository) Deactivate(ctx context.Context, userID, carrierName string) error {
	key, err := r.key(userID, carrierName)
	if err != nil {
		return err
	}
	nowAV, _ := attributevalue.Marshal(time.Now().UTC().Format(time.RFC3339))

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &r.table,
		Key:                 key,
		UpdateExpression:    aws.String("SET is_active = :inactive, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inactive": &types.AttributeValueMemberBOOL{Value: false},
			":now":      nowAV,
		},
	})
	return r.mapUpdateError(err, "deactivate")
}

// SaveTokens rewrites the stored credentials. The write is conditioned on the
// credentials read so a concurrent writer is detected instead of overwritten.
func (r *DynamoCarrierConfigRepository) SaveTokens(ctx context.Context, userID, carrierName, accessToken, refreshToken string, expiresAt time.Time) error {
	key, err := r.key(userID, carrierName)
	if err != nil {
		return err
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.table,
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return carriers.ErrConfigurationNotFound
	}
	var d ddbCarrierConfig
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	cfg, err := d.toModel()
	if err != nil {
		return err
	}

	creds := cfg.Credentials
	creds.AccessToken = accessToken
	creds.RefreshToken = refreshToken
	expires := expiresAt.UTC()
	creds.TokenExpiresAt = &expires
	b, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	newAV, _ := attributevalue.Marshal(string(b))
	oldAV, _ := attributevalue.Marshal(d.Credentials)
	nowAV, _ := attributevalue.Marshal(time.Now().UTC().Format(time.RFC3339))

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &r.table,
		Key:                 key,
		UpdateExpression:    aws.String("SET credentials = :creds, updated_at = :now"),
		ConditionExpression: aws.String("credentials = :old"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":creds": newAV,
			":old":   oldAV,
			":now":   nowAV,
		},
	})
	return r.mapUpdateError(err, "save tokens")
}

func (r *DynamoCarrierConfigRepository) mapUpdateError(err error, op string) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if op == "deactivate" {
			return carriers.ErrConfigurationNotFound
		}
		return ErrConcurrentUpdate
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
