// cmd/cctv-discover/nmap.go
package main

import (
	"encoding/xml"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// cameraPorts are the services an IP camera typically exposes.
var cameraPorts = map[int]string{
	80:    "http",
	443:   "https",
	554:   "rtsp",
	8000:  "hikvision-sdk",
	8554:  "rtsp-alt",
	37777: "dahua-sdk",
}

type NmapRun struct {
	XMLName xml.Name `xml:"nmaprun"`
	Args    string   `xml:"args,attr"`
	Version string   `xml:"version,attr"`
	Hosts   []Host   `xml:"host"`
}

type Host struct {
	Status    HostStatus `xml:"status"`
	Addresses []Address  `xml:"address"`
	Hostnames []Hostname `xml:"hostnames>hostname"`
	Ports     []Port     `xml:"ports>port"`
}

type HostStatus struct {
	State string `xml:"state,attr"`
}

type Address struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
	Vendor   string `xml:"vendor,attr"`
}

type Hostname struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type Port struct {
	Protocol string      `xml:"protocol,attr"`
	PortID   int         `xml:"portid,attr"`
	State    PortState   `xml:"state"`
	Service  PortService `xml:"service"`
}

type PortState struct {
	State string `xml:"state,attr"`
}

type PortService struct {
	Name    string `xml:"name,attr"`
	Product string `xml:"product,attr"`
}

func parseNmap(data []byte) (*NmapRun, error) {
	var run NmapRun
	if err := xml.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse nmap XML: %w", err)
	}
	return &run, nil
}

func portList() string {
	ports := make([]string, 0, len(cameraPorts))
	for port := range cameraPorts {
		ports = append(ports, strconv.Itoa(port))
	}
	return strings.Join(sortedStrings(ports), ",")
}

func runNmapScan(network, nmapPath string, verbose bool) ([]byte, error) {
	args := []string{"--system-dns", "-oX", "-", "-p", portList()}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, network)

	fmt.Printf("Running: %s %s\n", nmapPath, strings.Join(args, " "))

	output, err := exec.Command(nmapPath, args...).Output()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("nmap exited with status %d", exitError.ExitCode())
		}
		return nil, fmt.Errorf("nmap execution failed: %w", err)
	}
	return output, nil
}
