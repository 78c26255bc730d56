// Package archive mirrors check results into DynamoDB for long-term
// retention outside the primary store.
package archive

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pulsewatch/pulsewatch/internal/monitor"
)

// PutItemAPI is the part of the DynamoDB client the archiver uses.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Config holds archive settings.
type Config struct {
	Table string

	// Retention sets the item TTL. Zero keeps items forever.
	Retention time.Duration
}

// DynamoDBArchiver writes one item per check result, keyed by monitor ID
// and check time.
type DynamoDBArchiver struct {
	client    PutItemAPI
	table     string
	retention time.Duration
}

// NewDynamoDBClient creates a DynamoDB client from the default AWS
// configuration chain.
func NewDynamoDBClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// NewDynamoDBArchiver creates an archiver writing through client.
func NewDynamoDBArchiver(client PutItemAPI, cfg Config) *DynamoDBArchiver {
	return &DynamoDBArchiver{
		client:    client,
		table:     cfg.Table,
		retention: cfg.Retention,
	}
}

// Archive stores check as an item of the archive table.
func (a *DynamoDBArchiver) Archive(ctx context.Context, m *monitor.Monitor, check *monitor.CheckResult) error {
	_, err := a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.table),
		Item:      a.item(m, check),
	})
	if err != nil {
		return fmt.Errorf("failed to archive check %s: %w", check.ID, err)
	}
	return nil
}

func (a *DynamoDBArchiver) item(m *monitor.Monitor, check *monitor.CheckResult) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"monitorId":      &types.AttributeValueMemberS{Value: check.MonitorID},
		"checkedAt":      &types.AttributeValueMemberS{Value: check.CheckedAt.UTC().Format(time.RFC3339Nano) + "#" + check.ID},
		"checkId":        &types.AttributeValueMemberS{Value: check.ID},
		"tenantId":       &types.AttributeValueMemberS{Value: m.TenantID},
		"monitorType":    &types.AttributeValueMemberS{Value: string(m.Type)},
		"status":         &types.AttributeValueMemberS{Value: string(check.Status)},
		"responseTimeMs": &types.AttributeValueMemberN{Value: strconv.Itoa(check.ResponseTime)},
		"region":         &types.AttributeValueMemberS{Value: check.Region},
	}
	if check.StatusCode != nil {
		item["statusCode"] = &types.AttributeValueMemberN{Value: strconv.Itoa(*check.StatusCode)}
	}
	if check.Error != nil {
		item["error"] = &types.AttributeValueMemberS{Value: *check.Error}
	}
	if a.retention > 0 {
		expires := check.CheckedAt.Add(a.retention).Unix()
		item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)}
	}
	return item
}
