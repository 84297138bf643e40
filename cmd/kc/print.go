package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/multicluster"
	"github.com/sttts/kcore/pkg/resources"
)

// printObjects writes objs in the given output format: table, wide, yaml or json.
func printObjects(w io.Writer, desc api.Descriptor, objs []*resources.Object, output string, showCluster bool) error {
	switch output {
	case "yaml":
		for i, o := range objs {
			data, err := o.YAML()
			if err != nil {
				return err
			}
			if i > 0 {
				fmt.Fprintln(w, "---")
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(objs)
	case "", "table", "wide":
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	if len(objs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No resources found."))
		return nil
	}
	headers, rows := objectRows(desc, objs, showCluster, output == "wide")
	_, err := io.WriteString(w, renderTable(headers, rows))
	return err
}

func objectRows(desc api.Descriptor, objs []*resources.Object, showCluster, wide bool) ([]string, [][]string) {
	var headers []string
	if showCluster {
		headers = append(headers, "CLUSTER")
	}
	if desc.Namespaced {
		headers = append(headers, "NAMESPACE")
	}
	headers = append(headers, "NAME")
	headers = append(headers, kindColumns(desc, nil, wide)...)
	headers = append(headers, "AGE")

	rows := make([][]string, 0, len(objs))
	for _, o := range objs {
		var row []string
		if showCluster {
			row = append(row, o.Cluster())
		}
		if desc.Namespaced {
			row = append(row, o.Namespace())
		}
		row = append(row, o.Name())
		row = append(row, kindColumns(desc, o, wide)...)
		row = append(row, o.HumanAge())
		rows = append(rows, row)
	}
	return headers, rows
}

// kindColumns returns the headers for a nil object, the values otherwise.
func kindColumns(desc api.Descriptor, o *resources.Object, wide bool) []string {
	switch desc {
	case resources.PodKind:
		if o == nil {
			h := []string{"READY", "STATUS", "RESTARTS"}
			if wide {
				h = append(h, "NODE")
			}
			return h
		}
		p, err := resources.AsPod(o)
		if err != nil {
			return unknown(desc, wide)
		}
		ready, total := p.ReadyContainers()
		v := []string{fmt.Sprintf("%d/%d", ready, total), string(p.Phase()), strconv.Itoa(int(p.Restarts()))}
		if wide {
			v = append(v, p.NodeName())
		}
		return v
	case resources.NodeKind:
		if o == nil {
			h := []string{"STATUS", "VERSION"}
			if wide {
				h = append(h, "INTERNAL-IP", "EXTERNAL-IP")
			}
			return h
		}
		n, err := resources.AsNode(o)
		if err != nil {
			return unknown(desc, wide)
		}
		status := "NotReady"
		if n.Ready() {
			status = "Ready"
		}
		if n.Unschedulable() {
			status += ",SchedulingDisabled"
		}
		v := []string{status, n.KubeletVersion()}
		if wide {
			v = append(v, orNone(n.InternalIP()), orNone(n.ExternalIP()))
		}
		return v
	case resources.DeploymentKind:
		if o == nil {
			return []string{"READY", "UP-TO-DATE"}
		}
		d, err := resources.AsDeployment(o)
		if err != nil {
			return unknown(desc, wide)
		}
		return []string{fmt.Sprintf("%d/%d", d.ReadyReplicas(), d.Replicas()), strconv.Itoa(int(d.UpdatedReplicas()))}
	}
	return nil
}

func unknown(desc api.Descriptor, wide bool) []string {
	v := kindColumns(desc, nil, wide)
	for i := range v {
		v[i] = "?"
	}
	return v
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

// reportFailures prints per-cluster failures and returns an error only when
// no cluster succeeded.
func reportFailures[T any](w io.Writer, res multicluster.Composite[T]) error {
	failed := res.Failed()
	for _, r := range failed {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("%s %s: %v", crossMark, r.Cluster, r.Err)))
	}
	if len(failed) > 0 && len(res.Succeeded()) == 0 {
		return res.Err()
	}
	return nil
}
