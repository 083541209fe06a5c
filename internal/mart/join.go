package mart

// BuildMart left-joins aggregated telemetry with the CRM dimension on user_id.
//
// Telemetry drives the join: every aggregate yields exactly one mart record,
// in input order. A user without a CRM row keeps nil CRM fields; the decision
// of what to do with such rows belongs to [Coerce].
//
// The output column list is [MartColumns] restricted to what the joined
// result actually carries. CRM columns the dimension cannot supply are
// dropped, never padded or renamed.
func BuildMart(aggs []AggregatedTelemetryRecord, crm CrmSet) MartSet {
	idx := crm.Index()

	records := make([]MartRecord, 0, len(aggs))
	for _, agg := range aggs {
		rec := MartRecord{AggregatedTelemetryRecord: agg}
		if c, ok := idx[agg.UserID]; ok {
			rec.CrmName = stringPtr(c.Name)
			rec.CrmGender = stringPtr(c.Gender)
			if c.Age != nil {
				age := *c.Age
				rec.CrmAge = &age
			}
		}
		records = append(records, rec)
	}

	return MartSet{
		Columns: availableColumns(crm.Columns),
		Records: records,
	}
}

// availableColumns keeps MartColumns in order, dropping CRM columns the
// dimension does not carry.
func availableColumns(crmCols []string) []string {
	carried := make(map[string]bool, len(crmCols))
	for _, c := range crmCols {
		carried[c] = true
	}

	cols := make([]string, 0, len(MartColumns))
	for _, c := range MartColumns {
		if isCrmColumn(c) && !carried[c] {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func isCrmColumn(name string) bool {
	for _, c := range CrmColumns {
		if c == name {
			return true
		}
	}
	return false
}

func stringPtr(s string) *string { return &s }
