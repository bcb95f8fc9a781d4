// cmd/cctv-discover/main.go
// cctv-discover turns an nmap sweep into a cameras: seed file that cctvd
// can load directly or through its include directory.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
)

func main() {
	network := flag.String("network", "", "Network to scan in CIDR notation (default: first local network)")
	input := flag.String("input", "", "Read an existing nmap XML report instead of scanning")
	output := flag.String("output", "cameras.yaml", "Output file")
	location := flag.String("location", "", "Location assigned to every discovered camera")
	nmapPath := flag.String("nmap", "nmap", "Path to the nmap binary")
	requireRTSP := flag.Bool("rtsp-only", false, "Only keep hosts with an open RTSP port")
	verbose := flag.Bool("verbose", false, "Verbose nmap output")
	flag.Parse()

	var data []byte
	var err error
	if *input != "" {
		data, err = os.ReadFile(*input)
		if err != nil {
			logrus.Fatalf("Failed to read %s: %v", *input, err)
		}
	} else {
		target := *network
		if target == "" {
			target = detectLocalNetwork()
			if target == "" {
				logrus.Fatal("Could not detect a local network; pass -network")
			}
		}
		data, err = runNmapScan(target, *nmapPath, *verbose)
		if err != nil {
			logrus.Fatalf("Scan failed: %v", err)
		}
	}

	run, err := parseNmap(data)
	if err != nil {
		logrus.Fatal(err)
	}

	cameras := discoverCameras(run, *location, *requireRTSP)
	if err := writeSeed(cameras, *output); err != nil {
		logrus.Fatalf("Failed to write %s: %v", *output, err)
	}

	fmt.Printf("\nSeed written to: %s\n", *output)
	fmt.Printf("Discovered %d cameras\n", len(cameras))
}

func detectLocalNetwork() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && ipnet.IP.IsGlobalUnicast() {
				return ipnet.String()
			}
		}
	}
	return ""
}

// discoverCameras keeps live hosts that expose at least one camera port,
// ordered by address.
func discoverCameras(run *NmapRun, location string, requireRTSP bool) []config.CameraConfig {
	var cameras []config.CameraConfig

	for _, host := range run.Hosts {
		if host.Status.State != "up" {
			continue
		}

		ip, vendor := hostAddress(host)
		if ip == "" {
			continue
		}

		services := openCameraServices(host)
		if len(services) == 0 {
			continue
		}
		if requireRTSP && !contains(services, "rtsp") && !contains(services, "rtsp-alt") {
			continue
		}

		name := cameraName(ip, hostName(host))
		description := "Discovered " + time.Now().Format("2006-01-02") + " (" + strings.Join(services, ", ") + ")"
		if vendor != "" {
			description = vendor + ", " + description
		}

		cameras = append(cameras, config.CameraConfig{
			ID:          name,
			Name:        name,
			Description: description,
			Location:    location,
			IP:          ip,
		})
	}

	sort.Slice(cameras, func(i, j int) bool {
		return ipLess(cameras[i].IP, cameras[j].IP)
	})
	return cameras
}

func hostAddress(host Host) (string, string) {
	var ip, vendor string
	for _, addr := range host.Addresses {
		switch addr.AddrType {
		case "ipv4":
			ip = addr.Addr
		case "mac":
			vendor = addr.Vendor
		}
	}
	return ip, vendor
}

func hostName(host Host) string {
	for _, hn := range host.Hostnames {
		if hn.Type == "PTR" || hn.Type == "user" {
			return hn.Name
		}
	}
	return ""
}

func openCameraServices(host Host) []string {
	var services []string
	for _, port := range host.Ports {
		if port.State.State != "open" {
			continue
		}
		if name, ok := cameraPorts[port.PortID]; ok {
			services = append(services, name)
		}
	}
	return sortedStrings(services)
}

func cameraName(ip, hostname string) string {
	if hostname != "" {
		return strings.ToLower(strings.Split(hostname, ".")[0])
	}
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return "cam-" + parts[3]
	}
	return "cam-" + strings.ReplaceAll(ip, ".", "-")
}

func ipLess(a, b string) bool {
	ipA, ipB := net.ParseIP(a).To4(), net.ParseIP(b).To4()
	if ipA == nil || ipB == nil {
		return a < b
	}
	for i := range ipA {
		if ipA[i] != ipB[i] {
			return ipA[i] < ipB[i]
		}
	}
	return false
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func sortedStrings(values []string) []string {
	sort.Slice(values, func(i, j int) bool {
		a, errA := strconv.Atoi(values[i])
		b, errB := strconv.Atoi(values[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return values[i] < values[j]
	})
	return values
}

func writeSeed(cameras []config.CameraConfig, filename string) error {
	data, err := yaml.Marshal(config.PartialConfig{Cameras: cameras})
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	header := fmt.Sprintf("# CCTV camera seed\n# Generated by cctv-discover on %s\n# Contains %d cameras\n\n",
		time.Now().Format("2006-01-02 15:04:05"), len(cameras))

	if err := os.WriteFile(filename, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
