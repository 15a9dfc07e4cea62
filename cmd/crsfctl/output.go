package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/crsfctl/internal/params"
	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

type dumpDevice struct {
	Name        string `json:"name" yaml:"name"`
	Address     string `json:"address" yaml:"address"`
	Firmware    string `json:"firmware" yaml:"firmware"`
	KnownVendor bool   `json:"knownVendor" yaml:"knownVendor"`
	Parameters  uint8  `json:"parameters" yaml:"parameters"`
}

type dumpEntry struct {
	crsf.Parameter `yaml:",inline"`
	Display        string `json:"display" yaml:"display"`
}

type dumpDoc struct {
	Device  dumpDevice  `json:"device" yaml:"device"`
	Params  []dumpEntry `json:"params" yaml:"params"`
	Missing []uint8     `json:"missing,omitempty" yaml:"missing,omitempty"`
}

func newDump(d params.Device, list []crsf.Parameter, missing []uint8) dumpDoc {
	doc := dumpDoc{
		Device: dumpDevice{
			Name:        d.Name,
			Address:     fmt.Sprintf("0x%02X", d.Address),
			Firmware:    d.FirmwareVersion(),
			KnownVendor: d.KnownVendor,
			Parameters:  d.ParametersTotal,
		},
		Params:  make([]dumpEntry, 0, len(list)),
		Missing: missing,
	}
	for _, p := range list {
		doc.Params = append(doc.Params, dumpEntry{Parameter: p, Display: p.DisplayValue()})
	}
	return doc
}

func writeDump(out io.Writer, format string, doc dumpDoc) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", format)
}

func writeDevices(out io.Writer, devices []params.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(out, "no devices found")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDR\tNAME\tFIRMWARE\tPARAMS\tELRS")
	for _, d := range devices {
		fmt.Fprintf(tw, "0x%02X\t%s\t%s\t%d\t%v\n", d.Address, d.Name, d.FirmwareVersion(), d.ParametersTotal, d.KnownVendor)
	}
	_ = tw.Flush()
}
