package codec

import (
	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// MainSchema describes the shared table and its two secondary indexes.
func MainSchema(name string) table.Schema {
	return table.Schema{
		Name:         name,
		PartitionKey: keys.AttrPK,
		SortKey:      keys.AttrSK,
		Indexes: map[string]table.IndexSchema{
			keys.IndexGSI1: {PartitionKey: keys.AttrGSI1PK, SortKey: keys.AttrGSI1SK},
			keys.IndexGSI2: {PartitionKey: keys.AttrGSI2PK, SortKey: keys.AttrGSI2SK},
		},
		Stream: true,
	}
}

// PaymentsSchema describes the auxiliary payments table.
func PaymentsSchema(name string) table.Schema {
	return table.Schema{
		Name:         name,
		PartitionKey: keys.AttrPaymentPK,
		SortKey:      keys.AttrPaymentSK,
	}
}
