package otel

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// DBSpan 为数据库操作创建 span
func DBSpan(ctx context.Context, system, operation, statement string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemKey.String(system),
			semconv.DBOperationKey.String(operation),
			attribute.String("db.statement", statement),
		),
	)
}

// WrapDBError 记录数据库错误到 span，not-found 不视为错误
func WrapDBError(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, pgx.ErrNoRows):
		span.SetStatus(codes.Ok, "no rows")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Postgres 包装一次 postgres 调用，自动添加追踪
func Postgres(ctx context.Context, operation, statement string, fn func(context.Context) error) error {
	ctx, span := DBSpan(ctx, "postgresql", operation, statement)
	defer span.End()

	err := fn(ctx)
	WrapDBError(span, err)
	return err
}

// Mongo 包装一次 mongo 调用
func Mongo(ctx context.Context, operation, collection string, fn func(context.Context) error) error {
	ctx, span := DBSpan(ctx, "mongodb", operation, collection)
	defer span.End()

	err := fn(ctx)
	WrapDBError(span, err)
	return err
}
