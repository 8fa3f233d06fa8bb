package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hitoshi/focustrack/internal/model"
)

// DynamoUserRepo はDynamoDBを使用したユーザーリポジトリ。
//
// メールアドレスの一意性は、ユーザー項目とガード項目（emailsテーブル）を
// 条件付きトランザクションで同時に書き込むことで保証する。
type DynamoUserRepo struct {
	conn *DynamoConnection
}

// compile-time interface check
var _ UserRepository = (*DynamoUserRepo)(nil)

// NewDynamoUserRepo はDynamoUserRepoを生成する。
func NewDynamoUserRepo(conn *DynamoConnection) *DynamoUserRepo {
	return &DynamoUserRepo{conn: conn}
}

func (r *DynamoUserRepo) table() string { return r.conn.settings.UsersTable }

// Create はユーザーを作成する。
func (r *DynamoUserRepo) Create(ctx context.Context, in model.NewUser) (*model.User, error) {
	user, err := model.BuildUser(in, newID(), model.Now())
	if err != nil {
		return nil, err
	}
	client, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("Create", "", err)
	}

	guardKey := userEmailGuardPrefix + user.Email
	owner, err := lookupEmailGuard(ctx, client, r.conn.settings.EmailsTable, guardKey)
	if err != nil {
		return nil, model.NewRepositoryError("Create", "", fmt.Errorf("failed to check email: %w", err))
	}
	if owner != "" {
		return nil, model.NewAlreadyExistsError("ユーザー", user.Email)
	}

	item, err := marshalDocument(user.ToDocument())
	if err != nil {
		return nil, model.NewRepositoryError("Create", user.ID, err)
	}

	_, err = client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			emailGuardPut(r.conn.settings.EmailsTable, guardKey, user.ID),
			{
				Put: &types.Put{
					TableName:           aws.String(r.table()),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(id)"),
				},
			},
		},
	})
	if isConditionalCheckFailed(err) {
		return nil, model.NewAlreadyExistsError("ユーザー", user.Email)
	}
	if err != nil {
		return nil, model.NewRepositoryError("Create", user.ID, fmt.Errorf("failed to put user: %w", err))
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。
func (r *DynamoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	client, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("FindByID", id, err)
	}
	return r.get(ctx, client, "FindByID", id)
}

// FindByEmail はガード項目を経由してユーザーを検索する。
func (r *DynamoUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	client, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("FindByEmail", "", err)
	}
	owner, err := lookupEmailGuard(ctx, client, r.conn.settings.EmailsTable,
		userEmailGuardPrefix+model.NormalizeEmail(email))
	if err != nil {
		return nil, model.NewRepositoryError("FindByEmail", "", err)
	}
	if owner == "" {
		return nil, nil
	}
	return r.get(ctx, client, "FindByEmail", owner)
}

func (r *DynamoUserRepo) get(ctx context.Context, client DynamoAPI, op, id string) (*model.User, error) {
	if id == "" {
		return nil, nil
	}
	doc, err := getDocument(ctx, client, r.table(), id)
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}
	if doc == nil {
		return nil, nil
	}
	user, err := model.UserFromDocument(doc)
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}
	return user, nil
}

// Update は部分更新を適用して項目を置き換える。見つからない場合はnilを返す。
func (r *DynamoUserRepo) Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	client, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("Update", id, err)
	}
	user, err := r.get(ctx, client, "Update", id)
	if err != nil || user == nil {
		return nil, err
	}
	if err := user.Apply(upd, model.Now()); err != nil {
		return nil, err
	}

	ok, err := putExisting(ctx, client, r.table(), user.ToDocument())
	if err != nil {
		return nil, model.NewRepositoryError("Update", id, fmt.Errorf("failed to put user: %w", err))
	}
	if !ok {
		return nil, nil
	}
	return user, nil
}

// Delete はユーザー項目とガード項目を同時に削除する。
func (r *DynamoUserRepo) Delete(ctx context.Context, id string) (bool, error) {
	client, err := r.conn.handle()
	if err != nil {
		return false, model.NewRepositoryError("Delete", id, err)
	}
	user, err := r.get(ctx, client, "Delete", id)
	if err != nil || user == nil {
		return false, err
	}

	_, err = client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName:           aws.String(r.table()),
					Key:                 stringKey("id", id),
					ConditionExpression: aws.String("attribute_exists(id)"),
				},
			},
			emailGuardDelete(r.conn.settings.EmailsTable, userEmailGuardPrefix+user.Email),
		},
	})
	if isConditionalCheckFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, model.NewRepositoryError("Delete", id, fmt.Errorf("failed to delete user: %w", err))
	}
	return true, nil
}

// List はスキャン順でユーザーをページングして返す。
func (r *DynamoUserRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	if err := model.ValidatePage(limit, offset); err != nil {
		return nil, err
	}
	client, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("List", "", err)
	}

	users := make([]*model.User, 0, limit)
	skipped := 0
	paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
		TableName: aws.String(r.table()),
	})
	for paginator.HasMorePages() && len(users) < limit {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, model.NewRepositoryError("List", "", fmt.Errorf("failed to scan users: %w", err))
		}
		for _, item := range page.Items {
			if skipped < offset {
				skipped++
				continue
			}
			if len(users) == limit {
				break
			}
			doc, err := unmarshalDocument(item)
			if err != nil {
				return nil, model.NewRepositoryError("List", "", err)
			}
			u, err := model.UserFromDocument(doc)
			if err != nil {
				return nil, model.NewRepositoryError("List", "", err)
			}
			users = append(users, u)
		}
	}
	return users, nil
}

// Count はユーザー数を返す。
func (r *DynamoUserRepo) Count(ctx context.Context) (int, error) {
	client, err := r.conn.handle()
	if err != nil {
		return 0, model.NewRepositoryError("Count", "", err)
	}

	total := 0
	paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
		TableName: aws.String(r.table()),
		Select:    types.SelectCount,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, model.NewRepositoryError("Count", "", fmt.Errorf("failed to count users: %w", err))
		}
		total += int(page.Count)
	}
	return total, nil
}

// Exists は指定IDのユーザーが存在するかを返す。
func (r *DynamoUserRepo) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	client, err := r.conn.handle()
	if err != nil {
		return false, model.NewRepositoryError("Exists", id, err)
	}
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(r.table()),
		Key:                  stringKey("id", id),
		ProjectionExpression: aws.String("id"),
	})
	if err != nil {
		return false, model.NewRepositoryError("Exists", id, fmt.Errorf("failed to get user: %w", err))
	}
	return out.Item != nil, nil
}
