package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hitoshi/focustrack/internal/model"
)

// ProviderDynamoDB はDynamoDBバックエンドのプロバイダ名。
const ProviderDynamoDB = "dynamodb"

// メールアドレス一意性ガード項目のキー接頭辞
const (
	userEmailGuardPrefix    = "user:"
	accountEmailGuardPrefix = "account:"
)

// DynamoAPI はリポジトリが使用するDynamoDBクライアントの操作。
// *dynamodb.Clientはこのインターフェースを満たす。
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoSettings はDynamoDBバックエンドの接続設定。
type DynamoSettings struct {
	Region          string
	Endpoint        string // DynamoDB Local等のエンドポイント上書き（任意）
	CredentialsFile string // 共有認証情報ファイル（任意）
	AccessKeyID     string // 静的認証情報（任意）
	SecretAccessKey string

	UsersTable        string
	SessionsTable     string
	AccountsTable     string
	EmailsTable       string
	SessionsUserIndex string // sessionsテーブルのGSI（user_id, start_time）
}

// DynamoConnection はDynamoDBクライアントを管理するDatabaseConnection。
type DynamoConnection struct {
	settings  DynamoSettings
	newClient func(ctx context.Context, s DynamoSettings) (DynamoAPI, error)

	mu     sync.RWMutex
	client DynamoAPI
}

// compile-time interface check
var _ DatabaseConnection = (*DynamoConnection)(nil)

// NewDynamoConnection はDynamoConnectionを生成する。
func NewDynamoConnection(settings DynamoSettings) *DynamoConnection {
	return &DynamoConnection{settings: settings, newClient: newDynamoClient}
}

// NewDynamoConnectionWithClient は生成済みのクライアントを使用するDynamoConnectionを生成する。
func NewDynamoConnectionWithClient(settings DynamoSettings, client DynamoAPI) *DynamoConnection {
	return &DynamoConnection{
		settings: settings,
		newClient: func(context.Context, DynamoSettings) (DynamoAPI, error) {
			return client, nil
		},
	}
}

func newDynamoClient(ctx context.Context, s DynamoSettings) (DynamoAPI, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(s.Region)}
	if s.CredentialsFile != "" {
		opts = append(opts, config.WithSharedCredentialsFiles([]string{s.CredentialsFile}))
	}
	if s.AccessKeyID != "" {
		creds := credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
		}
	}), nil
}

// Connect はクライアントを生成し、usersテーブルの存在を確認する。接続済みの場合は何もしない。
func (c *DynamoConnection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	client, err := c.newClient(ctx, c.settings)
	if err != nil {
		return err
	}
	_, err = client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.settings.UsersTable),
	})
	if err != nil {
		return fmt.Errorf("failed to describe table %s: %w", c.settings.UsersTable, err)
	}

	c.client = client
	return nil
}

// Disconnect はクライアントを破棄する。SDKクライアントは明示的なクローズを必要としない。
func (c *DynamoConnection) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = nil
	return nil
}

// IsConnected は接続済みかを返す。
func (c *DynamoConnection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// HealthCheck は各テーブルの状態を返す。
func (c *DynamoConnection) HealthCheck(ctx context.Context) model.HealthStatus {
	client, err := c.handle()
	if err != nil {
		return model.NewHealthStatus(false, err.Error())
	}

	tables := map[string]any{}
	healthy := true
	for _, name := range []string{
		c.settings.UsersTable, c.settings.SessionsTable, c.settings.AccountsTable, c.settings.EmailsTable,
	} {
		out, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
		if err != nil {
			healthy = false
			tables[name] = err.Error()
			continue
		}
		if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
			healthy = false
		}
		if out.Table != nil {
			tables[name] = string(out.Table.TableStatus)
		}
	}

	return model.NewHealthStatus(healthy, map[string]any{
		"provider": ProviderDynamoDB,
		"region":   c.settings.Region,
		"tables":   tables,
	})
}

// Name はプロバイダ名を返す。
func (c *DynamoConnection) Name() string {
	return ProviderDynamoDB
}

func (c *DynamoConnection) handle() (DynamoAPI, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, errNotConnected
	}
	return c.client, nil
}

// stringKey は文字列のパーティションキーを組み立てる。
func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

func marshalDocument(doc map[string]any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	return item, nil
}

func unmarshalDocument(item map[string]types.AttributeValue) (map[string]any, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return doc, nil
}

// isConditionalCheckFailed はerrが条件付き書き込みの失敗かを判定する。
// トランザクションの場合はいずれかの項目の条件が失敗したかを判定する。
func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

// emailGuardPut はメールアドレスの一意性ガード項目を作成するトランザクション操作を返す。
func emailGuardPut(table, key, ownerID string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(table),
			Item: map[string]types.AttributeValue{
				"email":    &types.AttributeValueMemberS{Value: key},
				"owner_id": &types.AttributeValueMemberS{Value: ownerID},
			},
			ConditionExpression: aws.String("attribute_not_exists(email)"),
		},
	}
}

// emailGuardDelete はガード項目を削除するトランザクション操作を返す。
func emailGuardDelete(table, key string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(table),
			Key:       stringKey("email", key),
		},
	}
}

// lookupEmailGuard はガード項目からメールアドレスの所有者IDを取得する。存在しない場合は空文字列を返す。
func lookupEmailGuard(ctx context.Context, client DynamoAPI, table, key string) (string, error) {
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            stringKey("email", key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if out.Item == nil {
		return "", nil
	}
	owner, ok := out.Item["owner_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("email guard %s has no owner_id", key)
	}
	return owner.Value, nil
}

// getDocument は主キーidで項目を取得する。存在しない場合はnilを返す。
func getDocument(ctx context.Context, client DynamoAPI, table, id string) (map[string]any, error) {
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            stringKey("id", id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	return unmarshalDocument(out.Item)
}

// putExisting は既存項目を置き換える。項目が削除済みの場合はfalseを返す。
func putExisting(ctx context.Context, client DynamoAPI, table string, doc map[string]any) (bool, error) {
	item, err := marshalDocument(doc)
	if err != nil {
		return false, err
	}
	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(table),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionalCheckFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
