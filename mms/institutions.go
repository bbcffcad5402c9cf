package mms

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	cls "github.com/mms-notify/app/classes"
	"go.uber.org/zap"
)

const institutionsEndpoint = "admin/organization/get/info/byPage"

// filter codes understood by the institutions endpoint
const (
	OrganizationStatusActive = 1
	ExpirationStatusExpiring = 2
)

// contact types that hold a phone number
const (
	contactTypeMobile = 1
	contactTypePhone  = 2
)

type InstitutionsReq struct {
	PageNumber           int    `json:"pageNumber"`
	PageSize             int    `json:"pageSize"`
	OrganizationStatuses []int  `json:"organizationStatuses"`
	ExpirationStatuses   []int  `json:"expirationStatuses"`
	SearchKeyword        string `json:"searchKeyword"`
}

type ContactNumber struct {
	Type   int    `json:"type"`
	Number string `json:"number"`
}

// record as returned by the institutions endpoint
type RawInstitution struct {
	Name           string          `json:"name"`
	UID            string          `json:"uid"`
	ExpirationTime *string         `json:"expirationTime"`
	OwnerLastName  string          `json:"ownerLastName"`
	OwnerFirstName string          `json:"ownerFirstName"`
	ContactNumbers []ContactNumber `json:"contactNumbers"`
	Address        *string         `json:"address"`
	PurchasePlan   *struct {
		Name string `json:"name"`
	} `json:"purchasePlan"`
}

type institutionsPage struct {
	Data *struct {
		PageData []json.RawMessage `json:"pageData"`
	} `json:"data"`
}

// Get a single page of active, about to expire institutions. A response
// the api marks as failed, or one that can't be decoded, counts as an
// empty page; only transport failures are returned as errors.
func (c *Client) GetInstitutions(ctx context.Context, page int, perPage int) ([]cls.Institution, error) {
	insts, _, err := c.getPage(ctx, page, perPage)
	return insts, err
}

// getPage also returns how many records the page held, skipped ones
// included, so paging only stops on a truly empty page.
func (c *Client) getPage(ctx context.Context, page int, perPage int) ([]cls.Institution, int, error) {
	body, err := c.postJSON(ctx, institutionsEndpoint, InstitutionsReq{
		PageNumber:           page,
		PageSize:             perPage,
		OrganizationStatuses: []int{OrganizationStatusActive},
		ExpirationStatuses:   []int{ExpirationStatusExpiring},
		SearchKeyword:        "",
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get institutions page %d, %w", page, err)
	}

	var standardResp StandardResp
	if err := json.Unmarshal(body, &standardResp); err != nil {
		c.log.Errorf("mms : failed to decode institutions page %d: (%s), %v", page, body, err)
		return nil, 0, nil
	}
	if standardResp.Status != "success" {
		msg := "unknown error"
		if standardResp.Error != nil && standardResp.Error.Message != "" {
			msg = standardResp.Error.Message
		}
		c.log.Errorf("mms : api responded with an error, %s", msg)
		return nil, 0, nil
	}

	var pageResp institutionsPage
	if len(standardResp.Data) > 0 {
		if err := json.Unmarshal(standardResp.Data, &pageResp); err != nil {
			c.log.Errorf("mms : unexpected institutions page %d shape, %v", page, err)
			return nil, 0, nil
		}
	}
	if pageResp.Data == nil {
		return nil, 0, nil
	}

	// records are decoded one at a time so a malformed one only loses itself
	insts := make([]cls.Institution, 0, len(pageResp.Data.PageData))
	for i, record := range pageResp.Data.PageData {
		var raw RawInstitution
		if err := json.Unmarshal(record, &raw); err != nil {
			c.log.Warnf("mms : skipping record %d of page %d, %v", i, page, err)
			continue
		}
		insts = append(insts, normalise(raw))
	}
	return insts, len(pageResp.Data.PageData), nil
}

// Get every active institution expiring within daysThreshold days, nearest
// to expire first. Pages are requested until one comes back empty.
func (c *Client) FetchExpiring(ctx context.Context, daysThreshold int) ([]cls.Institution, error) {
	var all []cls.Institution
	for page := 1; ; page++ {
		insts, records, err := c.getPage(ctx, page, c.PageSize)
		if err != nil {
			c.log.Errorf("mms : failed to get expiring institutions, %v", err)
			return nil, err
		}
		if records == 0 {
			break
		}
		all = append(all, insts...)
	}

	expiring := FilterExpiring(all, c.now(), daysThreshold, c.log)
	c.log.Infof("mms : found %d institutions about to expire", len(expiring))
	return expiring, nil
}

// Compute days until expiry against today and keep the institutions with
// 0 < days <= threshold, sorted ascending by days. Institutions whose
// expiry date doesn't parse are logged and skipped.
func FilterExpiring(
	insts []cls.Institution,
	today time.Time,
	threshold int,
	logger *zap.SugaredLogger,
) []cls.Institution {
	expiring := []cls.Institution{}
	for _, inst := range insts {
		expiry, err := time.Parse(cls.DateLayout, inst.ExpiryDate)
		if err != nil {
			name := inst.Name
			if name == "" {
				name = "Unknown"
			}
			logger.Warnf("mms : failed to process expiry date of %s, %v", name, err)
			continue
		}

		days := cls.DaysBetween(today, expiry)
		if days <= 0 || days > threshold {
			continue
		}
		inst.DaysUntilExpiry = days
		expiring = append(expiring, inst)
	}

	sort.SliceStable(expiring, func(i, j int) bool {
		return expiring[i].DaysUntilExpiry < expiring[j].DaysUntilExpiry
	})
	return expiring
}

// turn a raw record into an Institution, filling absent display fields
// with cls.NotAvailable
func normalise(raw RawInstitution) cls.Institution {
	inst := cls.Institution{
		Name:          raw.Name,
		UID:           raw.UID,
		PlanName:      cls.NotAvailable,
		ContactPerson: cls.NotAvailable,
		ContactNumber: cls.NotAvailable,
		Address:       cls.NotAvailable,
	}

	if raw.ExpirationTime != nil {
		if t, err := parseTimestamp(*raw.ExpirationTime); err == nil {
			inst.ExpiryDate = t.Format(cls.DateLayout)
		} else {
			// left unparsed, FilterExpiring reports and drops it
			inst.ExpiryDate = *raw.ExpirationTime
		}
	}

	person := strings.TrimSpace(raw.OwnerLastName + " " + raw.OwnerFirstName)
	if person != "" {
		inst.ContactPerson = person
	}

	for _, contact := range raw.ContactNumbers {
		if contact.Type == contactTypeMobile || contact.Type == contactTypePhone {
			inst.ContactNumber = contact.Number
			break
		}
	}

	if raw.Address != nil && *raw.Address != "" {
		inst.Address = *raw.Address
	}
	if raw.PurchasePlan != nil && raw.PurchasePlan.Name != "" {
		inst.PlanName = raw.PurchasePlan.Name
	}

	return inst
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	cls.DateLayout,
}

// parse an ISO 8601 timestamp, with or without a zone or a trailing Z.
// The calendar date is taken as written, not converted to local time.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
