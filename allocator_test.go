package vkt

import (
	"testing"
)

func TestAlign(t *testing.T) {
	if makeAlignUp(12, 3) != 12 {
		t.Fail()
	}

	if makeAlignUp(10, 3) != 12 {
		t.Fail()
	}
}

func TestAllocator(t *testing.T) {

	a := LinearAllocator{Size: 1024, Align: 1}

	ra := a.Allocate(2048)
	if ra != nil {
		t.Error("oversized allocation should fail")
	}

	ra = a.Allocate(512)
	fa := ra
	if ra == nil {
		t.Error("first allocation should succeed")
	}

	ra = a.Allocate(768)
	if ra != nil {
		t.Error("allocation past capacity should fail")
	}

	ra = a.Allocate(500)
	k := ra
	if ra == nil {
		t.Error("allocation within remaining space should succeed")
	}

	ra = a.Allocate(50)
	if ra != nil {
		t.Error("allocation with 12 bytes left should fail")
	}

	ra = a.Allocate(5)
	if ra == nil {
		t.Error("small tail allocation should succeed")
	}

	ra = a.Allocate(20)
	if ra != nil {
		t.Error("tail is exhausted, allocation should fail")
	}

	a.Free(k)
	ra = a.Allocate(500)
	if ra == nil {
		t.Error("freed hole should be reusable")
	}

	a.Free(fa)
	ra = a.Allocate(20)
	if ra == nil {
		t.Error("head hole should be reusable")
	}

	ra = a.Allocate(40)
	if ra == nil {
		t.Error("head hole should fit a second allocation")
	}

	ra = a.Allocate(12)
	if ra == nil {
		t.Error("head hole should fit a third allocation")
	}
	ra = a.Allocate(500)
	if ra != nil {
		t.Error("no hole of 500 should remain")
	}
	ra = a.Allocate(5)
	if ra == nil {
		t.Error("small remainder should be allocatable")
	}
}

func TestAllocatorHeadHoleExactFit(t *testing.T) {
	a := LinearAllocator{Size: 100, Align: 1}

	first := a.Allocate(10)
	if first == nil || first.Offset != 0 {
		t.Fatalf("expected first allocation at offset 0, got %v", first)
	}
	if a.Allocate(90) == nil {
		t.Fatal("tail allocation should succeed")
	}

	a.Free(first)

	ra := a.Allocate(10)
	if ra == nil {
		t.Fatal("head hole exactly matching the request should be reusable")
	}
	if ra.Offset != 0 {
		t.Fatalf("expected reuse at offset 0, got %v", ra)
	}
}

func TestAllocatorAlignment(t *testing.T) {
	a := LinearAllocator{Size: 256, Align: 64}

	first := a.Allocate(10)
	if first == nil || first.Offset != 0 {
		t.Fatalf("expected first allocation at offset 0, got %v", first)
	}

	second := a.Allocate(10)
	if second == nil || second.Offset != 64 {
		t.Fatalf("expected aligned offset 64, got %v", second)
	}
}
