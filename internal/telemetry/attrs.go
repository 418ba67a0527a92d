package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Document concerns use a "doc." prefix; connection
// concerns use "conn."; sharding concerns use "shard.".
const (
	AttrDocumentID    = "doc.id"
	AttrVersion       = "doc.version"
	AttrTransactionID = "doc.transaction_id"
	AttrProcedure     = "doc.procedure"
	AttrReason        = "doc.reason"

	AttrConnectionID = "conn.id"
	AttrRemoteAddr   = "conn.remote_addr"
	AttrUserID       = "conn.user_id"
	AttrPermission   = "conn.permission"

	AttrShardGroup = "shard.group"
	AttrShardNode  = "shard.node"
)

// Span names. Format: <component>.<operation>.
const (
	SpanSubmit          = "document.submit"
	SpanRestore         = "document.restore"
	SpanSaveSnapshot    = "document.save_snapshot"
	SpanBroadcast       = "document.broadcast"
	SpanSocketMessage   = "transport.socket_message"
	SpanAuthVerify      = "auth.verify"
	SpanShardForward    = "shard.forward"
	SpanHotStorageWrite = "hotstorage.append"
	SpanColdStorageSave = "coldstorage.save"
)

func DocumentID(id string) attribute.KeyValue    { return attribute.String(AttrDocumentID, id) }
func Version(v uint64) attribute.KeyValue        { return attribute.Int64(AttrVersion, int64(v)) }
func TransactionID(id string) attribute.KeyValue { return attribute.String(AttrTransactionID, id) }
func Procedure(name string) attribute.KeyValue   { return attribute.String(AttrProcedure, name) }
func Reason(reason string) attribute.KeyValue    { return attribute.String(AttrReason, reason) }

func ConnectionID(id string) attribute.KeyValue { return attribute.String(AttrConnectionID, id) }
func RemoteAddr(addr string) attribute.KeyValue { return attribute.String(AttrRemoteAddr, addr) }
func UserID(id string) attribute.KeyValue       { return attribute.String(AttrUserID, id) }
func Permission(p string) attribute.KeyValue    { return attribute.String(AttrPermission, p) }

func ShardGroup(group string) attribute.KeyValue { return attribute.String(AttrShardGroup, group) }
func ShardNode(node string) attribute.KeyValue   { return attribute.String(AttrShardNode, node) }

// StartDocumentSpan starts a span for a per-document operation, tagging it
// with the document ID and any extra attrs.
func StartDocumentSpan(ctx context.Context, name, documentID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{DocumentID(documentID)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartConnectionSpan starts a span for a per-connection operation.
func StartConnectionSpan(ctx context.Context, name, connectionID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{ConnectionID(connectionID)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
