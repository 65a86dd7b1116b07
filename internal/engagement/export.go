package engagement

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"signal-radar/internal/model"
)

// CSVHeader 导出列顺序。
var CSVHeader = []string{
	"Name",
	"Job Title",
	"Location",
	"Industry",
	"Profile URL",
	"Total Connections",
	"Follower Count",
	"Company Name",
	"Employee Size",
	"Company Location",
	"Company Profile URL",
	"Reaction Type",
}

// WriteCSV 写出表头与每条线索一行。
func WriteCSV(w io.Writer, leads []model.Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range leads {
		row := []string{
			l.Name,
			l.JobTitle,
			l.Location,
			l.Industry,
			l.ProfileURL,
			strconv.Itoa(l.Connections),
			strconv.Itoa(l.Followers),
			l.CompanyName,
			l.EmployeeSize,
			l.CompanyLocation,
			l.CompanyProfileURL,
			l.ReactionType,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
