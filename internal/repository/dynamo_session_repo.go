package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hitoshi/focustrack/internal/model"
)

// DynamoSessionRepo はDynamoDBを使用したセッションリポジトリ。
// ユーザー別の検索はuser_id・start_timeをキーとするGSIを使用する。
// start_timeは固定幅のISO-8601文字列のため、文字列比較が時刻比較と一致する。
type DynamoSessionRepo struct {
	conn *DynamoConnection
}

// compile-time interface check
var _ SessionRepository = (*DynamoSessionRepo)(nil)

// NewDynamoSessionRepo はDynamoSessionRepoを生成する。
func NewDynamoSessionRepo(conn *DynamoConnection) *DynamoSessionRepo {
	return &DynamoSessionRepo{conn: conn}
}

func (r *DynamoSessionRepo) table() string { return r.conn.settings.SessionsTable }

// Create はactive状態のセッションを作成する。
func (r *DynamoSessionRepo) Create(ctx context.Context, in model.NewSession) (*model.Session, error) {
	session, err := model.BuildSession(in, newID(), model.Now())
	if err != nil {
		return nil, err
	}
	client, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("Create", "", err)
	}

	item, err := marshalDocument(session.ToDocument())
	if err != nil {
		return nil, model.NewRepositoryError("Create", session.ID, err)
	}
	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table()),
		Item:      item,
	})
	if err != nil {
		return nil, model.NewRepositoryError("Create", session.ID, fmt.Errorf("failed to put session: %w", err))
	}
	return session, nil
}

// FindByID は指定IDのセッションを取得する。
func (r *DynamoSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	client, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("FindByID", id, err)
	}
	return r.get(ctx, client, "FindByID", id)
}

func (r *DynamoSessionRepo) get(ctx context.Context, client DynamoAPI, op, id string) (*model.Session, error) {
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
	session, err := model.SessionFromDocument(doc)
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}
	return session, nil
}

// FindByUserID はGSIをstart_time降順で検索し、offset/limitを適用して返す。
func (r *DynamoSessionRepo) FindByUserID(ctx context.Context, userID string, opts SessionListOptions) ([]*model.Session, error) {
	limit, err := sessionListLimit(opts)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return []*model.Session{}, nil
	}

	keyCond := "user_id = :uid"
	values := map[string]types.AttributeValue{
		":uid": &types.AttributeValueMemberS{Value: userID},
	}
	switch {
	case opts.StartDate != nil && opts.EndDate != nil:
		keyCond += " AND start_time BETWEEN :from AND :to"
	case opts.StartDate != nil:
		keyCond += " AND start_time >= :from"
	case opts.EndDate != nil:
		keyCond += " AND start_time <= :to"
	}
	if opts.StartDate != nil {
		values[":from"] = &types.AttributeValueMemberS{Value: model.FormatTime(*opts.StartDate)}
	}
	if opts.EndDate != nil {
		values[":to"] = &types.AttributeValueMemberS{Value: model.FormatTime(*opts.EndDate)}
	}
	// BETWEENは下限が上限を超えるとエラーになるため空の結果を返す
	if opts.StartDate != nil && opts.EndDate != nil && opts.StartDate.After(*opts.EndDate) {
		return []*model.Session{}, nil
	}

	return r.query(ctx, "FindByUserID", &dynamodb.QueryInput{
		TableName:                 aws.String(r.table()),
		IndexName:                 aws.String(r.conn.settings.SessionsUserIndex),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(false),
	}, opts.Offset, limit)
}

// Update は部分更新を適用して項目を置き換える。
func (r *DynamoSessionRepo) Update(ctx context.Context, id string, upd model.SessionUpdate) (*model.Session, error) {
	return r.mutate(ctx, "Update", id, func(s *model.Session) error {
		return s.Apply(upd, model.Now())
	})
}

// Delete は指定IDのセッションを削除する。
func (r *DynamoSessionRepo) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	client, err := r.conn.handle()
	if err != nil {
		return false, model.NewRepositoryError("Delete", id, err)
	}
	_, err = client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.table()),
		Key:                 stringKey("id", id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionalCheckFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, model.NewRepositoryError("Delete", id, fmt.Errorf("failed to delete session: %w", err))
	}
	return true, nil
}

// CompleteSession はセッションを完了状態にして保存する。
func (r *DynamoSessionRepo) CompleteSession(ctx context.Context, id string, endTime time.Time) (*model.Session, error) {
	return r.mutate(ctx, "CompleteSession", id, func(s *model.Session) error {
		s.Complete(endTime)
		return nil
	})
}

// GetActiveSessions はユーザーのactive状態のセッションを返す。
func (r *DynamoSessionRepo) GetActiveSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	if userID == "" {
		return []*model.Session{}, nil
	}
	return r.query(ctx, "GetActiveSessions", &dynamodb.QueryInput{
		TableName:              aws.String(r.table()),
		IndexName:              aws.String(r.conn.settings.SessionsUserIndex),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("#status = :active"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":    &types.AttributeValueMemberS{Value: userID},
			":active": &types.AttributeValueMemberS{Value: string(model.SessionStatusActive)},
		},
		ScanIndexForward: aws.Bool(false),
	}, 0, 0)
}

// CountSessions はユーザーのセッション数を返す。
func (r *DynamoSessionRepo) CountSessions(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	client, err := r.conn.handle()
	if err != nil {
		return 0, model.NewRepositoryError("CountSessions", userID, err)
	}

	total := 0
	paginator := dynamodb.NewQueryPaginator(client, &dynamodb.QueryInput{
		TableName:              aws.String(r.table()),
		IndexName:              aws.String(r.conn.settings.SessionsUserIndex),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		Select: types.SelectCount,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, model.NewRepositoryError("CountSessions", userID, fmt.Errorf("failed to count sessions: %w", err))
		}
		total += int(page.Count)
	}
	return total, nil
}

// ListOpenStartedBefore はテーブル全体をスキャンし、beforeより前に開始した
// active/pausedのセッションを古い順に最大limit件返す。
func (r *DynamoSessionRepo) ListOpenStartedBefore(ctx context.Context, before time.Time, limit int) ([]*model.Session, error) {
	limit, err := sessionListLimit(SessionListOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	client, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("ListOpenStartedBefore", "", err)
	}

	sessions := make([]*model.Session, 0)
	paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
		TableName:        aws.String(r.table()),
		FilterExpression: aws.String("#status IN (:active, :paused) AND start_time < :before"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberS{Value: string(model.SessionStatusActive)},
			":paused": &types.AttributeValueMemberS{Value: string(model.SessionStatusPaused)},
			":before": &types.AttributeValueMemberS{Value: model.FormatTime(before)},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, model.NewRepositoryError("ListOpenStartedBefore", "", fmt.Errorf("failed to scan sessions: %w", err))
		}
		decoded, err := decodeSessionItems("ListOpenStartedBefore", page.Items)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, decoded...)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return model.Paginate(sessions, limit, 0), nil
}

// query はQueryの全ページを読み、offset件を読み飛ばした後に最大limit件を返す。limitが0の場合は全件を返す。
func (r *DynamoSessionRepo) query(ctx context.Context, op string, input *dynamodb.QueryInput, offset, limit int) ([]*model.Session, error) {
	client, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError(op, "", err)
	}

	sessions := make([]*model.Session, 0)
	skipped := 0
	paginator := dynamodb.NewQueryPaginator(client, input)
	for paginator.HasMorePages() {
		if limit > 0 && len(sessions) >= limit {
			break
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, model.NewRepositoryError(op, "", fmt.Errorf("failed to query sessions: %w", err))
		}
		items := page.Items
		if skip := offset - skipped; skip > 0 {
			if skip > len(items) {
				skip = len(items)
			}
			items = items[skip:]
			skipped += skip
		}
		decoded, err := decodeSessionItems(op, items)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, decoded...)
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// mutate はセッションを読み出してfnを適用し、項目を置き換える。
func (r *DynamoSessionRepo) mutate(ctx context.Context, op, id string, fn func(*model.Session) error) (*model.Session, error) {
	client, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}
	session, err := r.get(ctx, client, op, id)
	if err != nil || session == nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}

	ok, err := putExisting(ctx, client, r.table(), session.ToDocument())
	if err != nil {
		return nil, model.NewRepositoryError(op, id, fmt.Errorf("failed to put session: %w", err))
	}
	if !ok {
		return nil, nil
	}
	return session, nil
}

func decodeSessionItems(op string, items []map[string]types.AttributeValue) ([]*model.Session, error) {
	out := make([]*model.Session, 0, len(items))
	for _, item := range items {
		doc, err := unmarshalDocument(item)
		if err != nil {
			return nil, model.NewRepositoryError(op, "", err)
		}
		s, err := model.SessionFromDocument(doc)
		if err != nil {
			return nil, model.NewRepositoryError(op, "", err)
		}
		out = append(out, s)
	}
	return out, nil
}
