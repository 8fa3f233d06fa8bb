package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hitoshi/focustrack/internal/auth"
	"github.com/hitoshi/focustrack/internal/model"
)

// DynamoAuthService はDynamoDBにアカウントを保持するAuthService。
// ユーザーと同様にガード項目でメールアドレスの一意性を保証する。
type DynamoAuthService struct {
	conn   *DynamoConnection
	issuer *auth.Issuer
}

// compile-time interface check
var _ AuthService = (*DynamoAuthService)(nil)

// NewDynamoAuthService はDynamoAuthServiceを生成する。
func NewDynamoAuthService(conn *DynamoConnection, issuer *auth.Issuer) *DynamoAuthService {
	return &DynamoAuthService{conn: conn, issuer: issuer}
}

func (s *DynamoAuthService) table() string { return s.conn.settings.AccountsTable }

// CreateAccount はアカウント項目とガード項目を条件付きトランザクションで作成する。
func (s *DynamoAuthService) CreateAccount(ctx context.Context, email, password string) (string, error) {
	account, err := newAuthAccount(email, password)
	if err != nil {
		return "", err
	}
	client, err := s.conn.handle()
	if err != nil {
		return "", model.NewRepositoryError("CreateAccount", "", err)
	}

	item, err := marshalDocument(account.toDocument())
	if err != nil {
		return "", model.NewRepositoryError("CreateAccount", account.ID, err)
	}
	_, err = client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			emailGuardPut(s.conn.settings.EmailsTable, accountEmailGuardPrefix+account.Email, account.ID),
			{
				Put: &types.Put{
					TableName:           aws.String(s.table()),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(id)"),
				},
			},
		},
	})
	if isConditionalCheckFailed(err) {
		return "", model.NewAlreadyExistsError("アカウント", account.Email)
	}
	if err != nil {
		return "", model.NewRepositoryError("CreateAccount", account.ID, fmt.Errorf("failed to put account: %w", err))
	}
	return account.ID, nil
}

// VerifyCredentials は資格情報を検証する。
func (s *DynamoAuthService) VerifyCredentials(ctx context.Context, email, password string) (string, error) {
	client, err := s.conn.handle()
	if err != nil {
		return "", model.NewRepositoryError("VerifyCredentials", "", err)
	}
	owner, err := lookupEmailGuard(ctx, client, s.conn.settings.EmailsTable,
		accountEmailGuardPrefix+model.NormalizeEmail(email))
	if err != nil {
		return "", model.NewRepositoryError("VerifyCredentials", "", err)
	}
	if owner == "" {
		return credentialCheck(nil, password)
	}
	account, err := s.get(ctx, client, "VerifyCredentials", owner)
	if err != nil {
		return "", err
	}
	return credentialCheck(account, password)
}

// DeleteAccount はアカウント項目とガード項目を削除し、発行済みトークンを失効させる。
func (s *DynamoAuthService) DeleteAccount(ctx context.Context, id string) (bool, error) {
	client, err := s.conn.handle()
	if err != nil {
		return false, model.NewRepositoryError("DeleteAccount", id, err)
	}
	account, err := s.get(ctx, client, "DeleteAccount", id)
	if err != nil || account == nil {
		return false, err
	}

	_, err = client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName:           aws.String(s.table()),
					Key:                 stringKey("id", id),
					ConditionExpression: aws.String("attribute_exists(id)"),
				},
			},
			emailGuardDelete(s.conn.settings.EmailsTable, accountEmailGuardPrefix+account.Email),
		},
	})
	if isConditionalCheckFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, model.NewRepositoryError("DeleteAccount", id, fmt.Errorf("failed to delete account: %w", err))
	}
	if err := revokeAfter(ctx, s.issuer, "DeleteAccount", id); err != nil {
		return false, err
	}
	return true, nil
}

// UpdatePassword は条件付きUpdateItemでパスワードを更新し、発行済みトークンを失効させる。
func (s *DynamoAuthService) UpdatePassword(ctx context.Context, id, newPassword string) (bool, error) {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return false, err
	}
	if id == "" {
		return false, nil
	}
	client, err := s.conn.handle()
	if err != nil {
		return false, model.NewRepositoryError("UpdatePassword", id, err)
	}

	_, err = client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table()),
		Key:                 stringKey("id", id),
		UpdateExpression:    aws.String("SET #password_hash = :hash, #updated_at = :updated_at"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#password_hash": "password_hash",
			"#updated_at":    "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hash":       &types.AttributeValueMemberS{Value: hash},
			":updated_at": &types.AttributeValueMemberS{Value: model.FormatTime(model.Now())},
		},
	})
	if isConditionalCheckFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, model.NewRepositoryError("UpdatePassword", id, fmt.Errorf("failed to update password: %w", err))
	}
	if err := revokeAfter(ctx, s.issuer, "UpdatePassword", id); err != nil {
		return false, err
	}
	return true, nil
}

// IssueToken はアカウントのアクセストークンを発行する。
func (s *DynamoAuthService) IssueToken(ctx context.Context, accountID string) (string, error) {
	exists, err := s.accountExists(ctx, accountID)
	if err != nil {
		return "", model.NewRepositoryError("IssueToken", accountID, err)
	}
	if !exists {
		return "", model.NewAccountNotFoundError()
	}
	token, err := s.issuer.Issue(ctx, accountID)
	if err != nil {
		return "", model.NewRepositoryError("IssueToken", accountID, err)
	}
	return token, nil
}

// VerifyToken はトークンを検証しアカウントIDを返す。
func (s *DynamoAuthService) VerifyToken(ctx context.Context, token string) (string, bool) {
	return s.issuer.Verify(ctx, token, s.accountExists)
}

func (s *DynamoAuthService) accountExists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	client, err := s.conn.handle()
	if err != nil {
		return false, err
	}
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.table()),
		Key:                  stringKey("id", id),
		ProjectionExpression: aws.String("id"),
	})
	if err != nil {
		return false, fmt.Errorf("failed to get account: %w", err)
	}
	return out.Item != nil, nil
}

func (s *DynamoAuthService) get(ctx context.Context, client DynamoAPI, op, id string) (*authAccount, error) {
	if id == "" {
		return nil, nil
	}
	doc, err := getDocument(ctx, client, s.table(), id)
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}
	if doc == nil {
		return nil, nil
	}
	account, err := accountFromDocument(doc)
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}
	return account, nil
}
