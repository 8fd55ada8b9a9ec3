package kafka

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sort"

	"github.com/aws/aws-lambda-go/events"
)

// LambdaBatchResult counts what HandleLambdaEvent did with a batch
type LambdaBatchResult struct {
	Processed int
	Failed    int
}

// DecodeLambdaRecord returns the key and value of a record delivered by a
// Lambda Kafka event source, where both arrive base64 encoded.
func DecodeLambdaRecord(record events.KafkaRecord) (key, value []byte, err error) {
	if record.Key != "" {
		key, err = base64.StdEncoding.DecodeString(record.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("decode key at offset %d: %w", record.Offset, err)
		}
	}
	value, err = base64.StdEncoding.DecodeString(record.Value)
	if err != nil {
		return nil, nil, fmt.Errorf("decode value at offset %d: %w", record.Offset, err)
	}
	return key, value, nil
}

// HandleLambdaEvent hands every record in the batch to handler, partition
// by partition in offset order. Like Consumer.Consume, a record that fails
// is logged and skipped. Only context cancellation stops the batch.
func HandleLambdaEvent(ctx context.Context, evt events.KafkaEvent, handler MessageHandler) (LambdaBatchResult, error) {
	var result LambdaBatchResult

	partitions := make([]string, 0, len(evt.Records))
	for p := range evt.Records {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)

	for _, p := range partitions {
		records := evt.Records[p]
		sort.Slice(records, func(i, j int) bool { return records[i].Offset < records[j].Offset })

		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			key, value, err := DecodeLambdaRecord(record)
			if err == nil {
				err = handler(ctx, key, value)
			}
			if err != nil {
				log.Printf("[Kafka] Error handling %s at offset %d: %v", p, record.Offset, err)
				result.Failed++
				continue
			}
			result.Processed++
		}
	}
	return result, nil
}
