// Package feed decodes the EA time series data exchange XML format used by
// the telemetry (RLOI) and forecast (FFOI) files.
package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
)

// ErrEmptyDocument is returned when the payload has no root element.
var ErrEmptyDocument = errors.New("empty feed document")

// Document is the root EATimeSeriesDataExchangeFormat element.
type Document struct {
	XMLName  xml.Name  `xml:"EATimeSeriesDataExchangeFormat" json:"-"`
	Date     string    `xml:"Date" json:"date,omitempty"`
	Time     string    `xml:"Time" json:"time,omitempty"`
	Stations []Station `xml:"Station" json:"stations"`
}

// Station is one station block. All attributes are optional in practice.
type Station struct {
	Reference string     `xml:"stationReference,attr" json:"stationReference"`
	Region    string     `xml:"region,attr" json:"region"`
	Name      string     `xml:"stationName,attr" json:"stationName"`
	NGR       string     `xml:"ngr,attr" json:"ngr,omitempty"`
	ValueSets []ValueSet `xml:"SetofValues" json:"setOfValues,omitempty"`
}

// ValueSet is one parameter/qualifier series of a station.
type ValueSet struct {
	Parameter string    `xml:"parameter,attr" json:"parameter,omitempty"`
	Qualifier string    `xml:"qualifier,attr" json:"qualifier,omitempty"`
	DataType  string    `xml:"dataType,attr" json:"dataType,omitempty"`
	Period    string    `xml:"period,attr" json:"period,omitempty"`
	Units     string    `xml:"units,attr" json:"units,omitempty"`
	StartDate string    `xml:"startDate,attr" json:"startDate,omitempty"`
	StartTime string    `xml:"startTime,attr" json:"startTime,omitempty"`
	EndDate   string    `xml:"endDate,attr" json:"endDate,omitempty"`
	EndTime   string    `xml:"endTime,attr" json:"endTime,omitempty"`
	Readings  []Reading `xml:"Value" json:"values"`
}

// Reading is a single timestamped value, kept as the raw string.
type Reading struct {
	Date  string `xml:"date,attr" json:"date"`
	Time  string `xml:"time,attr" json:"time"`
	Value string `xml:",chardata" json:"value"`
}

// Parse decodes a feed document.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed XML: %w", err)
	}
	for i := range doc.Stations {
		for j := range doc.Stations[i].ValueSets {
			readings := doc.Stations[i].ValueSets[j].Readings
			for k := range readings {
				readings[k].Value = strings.TrimSpace(readings[k].Value)
			}
		}
	}
	return &doc, nil
}

// ValueSetCount is the number of value-sets across all station blocks.
func (d *Document) ValueSetCount() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, st := range d.Stations {
		n += len(st.ValueSets)
	}
	return n
}
