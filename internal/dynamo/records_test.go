package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalRecord_SnapshotAttributeNames(t *testing.T) {
	item, err := MarshalRecord(SnapshotRecord{
		PKey:          "user-account-22",
		SKey:          "user-account-x-0",
		AID:           "user-account-x",
		Payload:       []byte(`{}`),
		Version:       3,
		LastUpdatedAt: 1700000000000,
	})
	require.NoError(t, err)

	for _, name := range []string{AttrPKey, AttrSKey, AttrAID, AttrSeqNr, AttrPayload, AttrVersion, AttrTTL, AttrLastUpdatedAt} {
		assert.Contains(t, item, name)
	}
	assert.Equal(t, &types.AttributeValueMemberN{Value: "0"}, item[AttrTTL])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "3"}, item[AttrVersion])
	assert.IsType(t, &types.AttributeValueMemberB{}, item[AttrPayload])
}

func TestUnmarshalRecord_ReportsMissing(t *testing.T) {
	item := RecordKey{PKey: "p", SKey: "s"}.Item()

	var rec JournalRecord
	missing, err := UnmarshalRecord(item, &rec, AttrPayload, AttrPKey)
	require.NoError(t, err)
	assert.Equal(t, []string{AttrPayload}, missing)
	assert.Equal(t, "p", rec.PKey)
	assert.Equal(t, "s", rec.SKey)
}

func TestUnmarshalRecord_TypeMismatch(t *testing.T) {
	item := map[string]types.AttributeValue{
		AttrSeqNr: &types.AttributeValueMemberS{Value: "not a number"},
	}
	var rec JournalRecord
	_, err := UnmarshalRecord(item, &rec)
	assert.Error(t, err)
}
